package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical form unchanged", "DH-AB12-CD34-EF56-GH78", "DH-AB12-CD34-EF56-GH78"},
		{"lowercase is uppercased", "dh-ab12-cd34-ef56-gh78", "DH-AB12-CD34-EF56-GH78"},
		{"dashes re-inserted", "DHAB12CD34EF56GH78", "DH-AB12-CD34-EF56-GH78"},
		{"surrounding whitespace trimmed", "  DH-AB12-CD34-EF56-GH78  ", "DH-AB12-CD34-EF56-GH78"},
		{"mixed grouping normalized", "DH-AB12CD34-EF56GH78", "DH-AB12-CD34-EF56-GH78"},
		{"malformed input returned compacted", "not-a-key", "NOTAKEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.input))
		})
	}
}

func TestValidateKeyFormat(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid dashed key", "DH-AB12-CD34-EF56-GH78", false},
		{"valid compact key", "DHAB12CD34EF56GH78", false},
		{"valid lowercase key", "dh-ab12-cd34-ef56-gh78", false},
		{"wrong prefix", "XX-AB12-CD34-EF56-GH78", true},
		{"too short", "DH-AB12-CD34", true},
		{"too long", "DH-AB12-CD34-EF56-GH78-IJ90", true},
		{"illegal characters", "DH-AB12-CD!4-EF56-GH78", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyFormat(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKeyFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "DH-A****GH78", MaskKey("DH-AB12-CD34-EF56-GH78"))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "****", MaskKey(""))
}
