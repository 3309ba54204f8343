package mcp

import (
	"fmt"
	"regexp"
	"sync"
)

// maxToolNameLen is the longest function name OpenAI-compatible APIs accept.
const maxToolNameLen = 64

var unsafeToolChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ToSafeName maps an MCP tool name onto the function-name alphabet providers
// accept ([A-Za-z0-9_-], at most 64 chars). Example: "gmail.messages.list"
// becomes "gmail_messages_list".
func ToSafeName(original string) string {
	safe := unsafeToolChars.ReplaceAllString(original, "_")
	if len(safe) > maxToolNameLen {
		safe = safe[:maxToolNameLen]
	}
	return safe
}

// NameAdapter remembers which safe name stands for which server-side name.
// Two originals that sanitize to the same name get numeric suffixes.
type NameAdapter struct {
	mu             sync.Mutex
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToOriginalName returns the server-side name behind safe.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// GetSafeName returns the safe name for original, allocating one on first use.
func (a *NameAdapter) GetSafeName(original string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if safe, ok := a.originalToSafe[original]; ok {
		return safe
	}
	base := ToSafeName(original)
	safe := base
	for i := 2; ; i++ {
		if _, taken := a.safeToOriginal[safe]; !taken {
			break
		}
		suffix := fmt.Sprintf("_%d", i)
		if len(base)+len(suffix) > maxToolNameLen {
			safe = base[:maxToolNameLen-len(suffix)] + suffix
		} else {
			safe = base + suffix
		}
	}
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
	return safe
}
