package extract

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func fromTXT(data []byte) (string, error) {
	// BOMOverride strips a leading UTF-8/UTF-16 BOM and transcodes; without
	// one the bytes pass through as UTF-8.
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return "", fmt.Errorf("%w: decode text: %v", ErrUnreadable, err)
	}
	return strings.ToValidUTF8(string(decoded), ""), nil
}
