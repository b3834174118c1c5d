package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveFilePathFromDocID(t *testing.T) {
	cases := []struct {
		name       string
		docID      string
		wantPrefix string
		wantOK     bool
	}{
		{"separator within window", "abc123456789-xyz", "abc123456789", true},
		{"separator before window end", "abc12-456789xyz", "abc12", true},
		{"no separator", "abcdef123456xyz", "abcdef123456", true},
		{"too short", "short-id", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prefix, ok := DeriveFilePathFromDocID(tc.docID)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantPrefix, prefix)
		})
	}
}
