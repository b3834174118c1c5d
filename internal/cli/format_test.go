package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestColorEnabledFalseForBuffer(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, ColorEnabled(&buf))
}

func TestStateColorKnownAndUnknown(t *testing.T) {
	assert.Equal(t, colorRed, StateColor("FAILED"))
	assert.Equal(t, colorGreen, StateColor("INDEXED"))
	assert.Equal(t, "", StateColor("BOGUS"))
}

func TestColorizeRespectsEnabled(t *testing.T) {
	assert.Equal(t, "x", Colorize(false, colorRed, "x"))
	assert.Equal(t, colorRed+"x"+colorReset, Colorize(true, colorRed, "x"))
	assert.Equal(t, "x", Colorize(true, "", "x"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "0 B", FormatSize(-5))
	assert.Equal(t, "1.0 kB", FormatSize(1000))
}

func TestFormatTimeRecentIsRelative(t *testing.T) {
	got := FormatTime(time.Now().Add(-5 * time.Minute))
	assert.Contains(t, got, "ago")
}

func TestFormatTimeOldIsAbsolute(t *testing.T) {
	got := FormatTime(time.Now().AddDate(-2, 0, 0))
	assert.NotContains(t, got, "ago")
}

func TestPrintTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"PATH", "STATE"}, [][]string{
		{"a.txt", "INDEXED"},
		{"longer/path.txt", "FAILED"},
	})

	out := buf.String()
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "longer/path.txt")
}
