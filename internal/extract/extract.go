// Package extract turns uploaded documents into plain text.
package extract

import (
	"errors"
	"strings"
)

// ErrUnreadable wraps every reader failure so callers can tell a corrupt
// document from one that legitimately has no text.
var ErrUnreadable = errors.New("unreadable document")

// Extract returns the plain text of data, dispatching on the extension of
// filename. Unsupported extensions and empty input yield "" and no error.
func Extract(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	switch Extension(filename) {
	case "txt":
		return fromTXT(data)
	case "pdf":
		return fromPDF(data)
	case "docx":
		return fromDOCX(data)
	}
	return "", nil
}

// Extension returns the lowercased text after the last dot, or "" if the
// name has no dot.
func Extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}
