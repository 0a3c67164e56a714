package license

import (
	"fmt"
	"strings"
)

// License key format: DH-XXXX-XXXX-XXXX-XXXX where X is an uppercase
// letter or digit. Keys are accepted with or without dashes and in
// any case; NormalizeKey produces the canonical dashed form.
const (
	keyPrefix      = "DH"
	keyGroupCount  = 4
	keyGroupLength = 4
)

// NormalizeKey uppercases a key, strips whitespace and dashes, and
// re-inserts the canonical dash grouping. Malformed input is returned
// trimmed and uppercased so error messages show what the user typed.
func NormalizeKey(key string) string {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
	body, ok := strings.CutPrefix(compact, keyPrefix)
	if !ok || len(body) != keyGroupCount*keyGroupLength {
		return compact
	}
	groups := make([]string, 0, keyGroupCount+1)
	groups = append(groups, keyPrefix)
	for i := 0; i < len(body); i += keyGroupLength {
		groups = append(groups, body[i:i+keyGroupLength])
	}
	return strings.Join(groups, "-")
}

// ValidateKeyFormat checks a license key against the expected format
// before any network round trip.
func ValidateKeyFormat(key string) error {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
	body, ok := strings.CutPrefix(compact, keyPrefix)
	if !ok {
		return fmt.Errorf("%w: key must start with %s", ErrInvalidKeyFormat, keyPrefix)
	}
	if len(body) != keyGroupCount*keyGroupLength {
		return fmt.Errorf("%w: expected %d characters after the prefix, got %d",
			ErrInvalidKeyFormat, keyGroupCount*keyGroupLength, len(body))
	}
	for _, ch := range body {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')) {
			return fmt.Errorf("%w: keys contain only letters and digits", ErrInvalidKeyFormat)
		}
	}
	return nil
}

// MaskKey redacts a license key for logging, keeping only the prefix
// and the last group.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
