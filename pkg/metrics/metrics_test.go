package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrcodeLabel(t *testing.T) {
	tests := map[string]string{
		"0":         "0",
		"93000":     "93000",
		"-1":        "-1",
		"none":      "none",
		"unparsed":  "unparsed",
		"other":     "other",
		"12345":     "other",
		"abc":       "other",
		"true":      "other",
		"1.5":       "other",
		"x-request": "other",
	}
	for raw, want := range tests {
		assert.Equal(t, want, ErrcodeLabel(raw), raw)
	}
}
