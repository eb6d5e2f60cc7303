package moderation

import (
	"path"
	"strings"
)

// SanitizeFilename reduces a client-supplied name to its base name, with
// both slash styles treated as separators. Names that reduce to nothing
// usable return placeholder.
func SanitizeFilename(name, placeholder string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimRight(name, "/")
	if name == "" {
		return placeholder
	}

	base := path.Base(name)
	base = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base))

	switch base {
	case "", ".", "..", "/":
		return placeholder
	}
	return base
}
