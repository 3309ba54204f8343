package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentKind tags the Attachment union.
type AttachmentKind string

const (
	AttachmentLocal  AttachmentKind = "local"
	AttachmentBase64 AttachmentKind = "base64"
	AttachmentRaw    AttachmentKind = "raw"
	AttachmentText   AttachmentKind = "text"
	AttachmentURL    AttachmentKind = "url"
	AttachmentChunks AttachmentKind = "chunks"
	AttachmentFileID AttachmentKind = "file_id"
)

// Attachment is a document handed to a provider alongside a message. Only
// the fields matching Kind are meaningful.
type Attachment struct {
	Kind   AttachmentKind `json:"kind"`
	MIME   string         `json:"mime,omitempty"`
	Title  string         `json:"title,omitempty"`
	Path   string         `json:"path,omitempty"`
	Base64 string         `json:"base64,omitempty"`
	Raw    []byte         `json:"raw,omitempty"`
	Text   string         `json:"text,omitempty"`
	URL    string         `json:"url,omitempty"`
	Chunks []string       `json:"chunks,omitempty"`
	FileID string         `json:"file_id,omitempty"`
}

// AttachmentFromPath references a local file, read when the message is sent.
func AttachmentFromPath(path, mimeType string) Attachment {
	return Attachment{Kind: AttachmentLocal, Path: path, MIME: mimeType, Title: filepath.Base(path)}
}

// AttachmentFromBase64 wraps already-encoded content.
func AttachmentFromBase64(data, mimeType, title string) Attachment {
	return Attachment{Kind: AttachmentBase64, Base64: data, MIME: mimeType, Title: title}
}

// AttachmentFromBytes wraps raw content.
func AttachmentFromBytes(data []byte, mimeType, title string) Attachment {
	return Attachment{Kind: AttachmentRaw, Raw: data, MIME: mimeType, Title: title}
}

// AttachmentFromText inlines text into the prompt.
func AttachmentFromText(text, title string) Attachment {
	return Attachment{Kind: AttachmentText, Text: text, MIME: "text/plain", Title: title}
}

// AttachmentFromURL references remote content.
func AttachmentFromURL(url, mimeType, title string) Attachment {
	return Attachment{Kind: AttachmentURL, URL: url, MIME: mimeType, Title: title}
}

// AttachmentFromChunks inlines pre-split text chunks.
func AttachmentFromChunks(chunks []string, title string) Attachment {
	return Attachment{Kind: AttachmentChunks, Chunks: chunks, MIME: "text/plain", Title: title}
}

// AttachmentFromFileID references a file previously uploaded to the provider.
func AttachmentFromFileID(id, title string) Attachment {
	return Attachment{Kind: AttachmentFileID, FileID: id, Title: title}
}

// IsImage reports whether the attachment MIME type is an image type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIME, "image/")
}

// EncodedFile is binary content ready to be embedded in a payload.
type EncodedFile struct {
	Name   string
	MIME   string
	Base64 string
}

// DataURL renders the file as a data: URL.
func (f EncodedFile) DataURL() string {
	return "data:" + f.MIME + ";base64," + f.Base64
}

// MappedAttachments is the provider-agnostic projection of a message's attachments.
type MappedAttachments struct {
	InlineTexts []string
	Images      []EncodedFile
	Files       []EncodedFile
	ImageURLs   []string
	FileURLs    []string
	FileIDs     []string
}

// Empty reports whether nothing was mapped.
func (m MappedAttachments) Empty() bool {
	return len(m.InlineTexts)+len(m.Images)+len(m.Files)+len(m.ImageURLs)+len(m.FileURLs)+len(m.FileIDs) == 0
}

// AppendInline appends inline texts to content, separated by blank lines.
func (m MappedAttachments) AppendInline(content string) string {
	if len(m.InlineTexts) == 0 {
		return content
	}
	parts := append([]string{content}, m.InlineTexts...)
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// MapAttachments resolves attachments into inline texts, encoded binaries
// and references. Local files are read here.
func MapAttachments(attachments []Attachment) (MappedAttachments, error) {
	var out MappedAttachments
	for _, att := range attachments {
		switch att.Kind {
		case AttachmentText:
			out.InlineTexts = append(out.InlineTexts, titled(att.Title, att.Text))
		case AttachmentChunks:
			out.InlineTexts = append(out.InlineTexts, titled(att.Title, strings.Join(att.Chunks, "\n")))
		case AttachmentURL:
			if att.IsImage() {
				out.ImageURLs = append(out.ImageURLs, att.URL)
			} else {
				out.FileURLs = append(out.FileURLs, att.URL)
			}
		case AttachmentFileID:
			out.FileIDs = append(out.FileIDs, att.FileID)
		case AttachmentLocal, AttachmentRaw, AttachmentBase64:
			file, err := encodeAttachment(att)
			if err != nil {
				return MappedAttachments{}, err
			}
			if strings.HasPrefix(file.MIME, "text/") {
				decoded, _ := base64.StdEncoding.DecodeString(file.Base64)
				out.InlineTexts = append(out.InlineTexts, titled(att.Title, string(decoded)))
				continue
			}
			if strings.HasPrefix(file.MIME, "image/") {
				out.Images = append(out.Images, file)
			} else {
				out.Files = append(out.Files, file)
			}
		default:
			return MappedAttachments{}, fmt.Errorf("unknown attachment kind %q", att.Kind)
		}
	}
	return out, nil
}

func encodeAttachment(att Attachment) (EncodedFile, error) {
	file := EncodedFile{Name: att.Title, MIME: att.MIME}
	var data []byte
	switch att.Kind {
	case AttachmentLocal:
		raw, err := os.ReadFile(att.Path) //#nosec G304 -- caller-provided attachment path
		if err != nil {
			return EncodedFile{}, fmt.Errorf("read attachment %s: %w", att.Path, err)
		}
		data = raw
		if file.MIME == "" {
			file.MIME = mime.TypeByExtension(filepath.Ext(att.Path))
		}
		if file.Name == "" {
			file.Name = filepath.Base(att.Path)
		}
	case AttachmentRaw:
		data = att.Raw
	case AttachmentBase64:
		file.Base64 = att.Base64
		if file.MIME == "" {
			if decoded, err := base64.StdEncoding.DecodeString(att.Base64); err == nil {
				file.MIME = http.DetectContentType(decoded)
			}
		}
	}
	if data != nil {
		file.Base64 = base64.StdEncoding.EncodeToString(data)
		if file.MIME == "" {
			file.MIME = http.DetectContentType(data)
		}
	}
	// Drop parameters such as "; charset=utf-8".
	if base, _, err := mime.ParseMediaType(file.MIME); err == nil {
		file.MIME = base
	}
	if file.MIME == "" {
		file.MIME = "application/octet-stream"
	}
	return file, nil
}

func titled(title, text string) string {
	if title == "" {
		return text
	}
	return "[" + title + "]\n" + text
}
