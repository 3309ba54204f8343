package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Multipart is a multipart/form-data body with string fields and at most one
// file part.
type Multipart struct {
	Fields    map[string]string
	FileField string
	FilePath  string
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	if m.FilePath != "" {
		field := m.FileField
		if field == "" {
			field = "file"
		}
		f, err := os.Open(m.FilePath) //#nosec G304 -- caller-supplied upload path
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", m.FilePath, err)
		}
		defer f.Close() //nolint:errcheck // Read-only file

		part, err := w.CreateFormFile(field, filepath.Base(m.FilePath))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("failed to copy %s: %w", m.FilePath, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
