package artifact

import (
	"errors"
	"strings"
	"testing"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Canonical(t *testing.T) {
	a, err := Normalize(map[string]any{
		"Path":      `C:\Program Files\Contoso\app.exe`,
		"Publisher": "O=Contoso, C=US",
		"SHA256":    "0xabcd1234",
		"Version":   "1.2.3.4",
		"Source":    "HOST01",
		"Size":      float64(2048),
		"Extra":     "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, `C:\Program Files\Contoso\app.exe`, a.Path)
	assert.Equal(t, "app.exe", a.Name)
	require.NotNil(t, a.Publisher)
	assert.Equal(t, "O=Contoso, C=US", *a.Publisher)
	assert.Equal(t, "ABCD1234", a.Hash)
	assert.Equal(t, "1.2.3.4", a.Version)
	assert.Equal(t, "HOST01", a.Source)
	assert.Equal(t, int64(2048), a.Size)
}

func TestNormalize_Aliases(t *testing.T) {
	a, err := Normalize(map[string]any{
		"FullPath":       "/opt/tools/run.sh",
		"FileName":       "runner",
		"Signer":         "Contoso",
		"FileHash":       "ff00",
		"ProductVersion": "2.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "/opt/tools/run.sh", a.Path)
	assert.Equal(t, "runner", a.Name)
	assert.Equal(t, "Contoso", *a.Publisher)
	assert.Equal(t, "FF00", a.Hash)
	assert.Equal(t, "2.0", a.Version)
}

func TestNormalize_RequiresPath(t *testing.T) {
	tests := []map[string]any{
		{},
		{"path": ""},
		{"path": "   "},
		{"path": nil, "name": "a.exe"},
	}
	for _, raw := range tests {
		_, err := Normalize(raw)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	}
}

func TestNormalize_BlankPublisherIsAbsent(t *testing.T) {
	a, err := Normalize(map[string]any{"path": `C:\x.exe`, "publisher": "  "})
	require.NoError(t, err)
	assert.Nil(t, a.Publisher)
}

func TestNormalizeAll_ReportsBadRecords(t *testing.T) {
	artifacts, errs := NormalizeAll([]map[string]any{
		{"path": `C:\a.exe`},
		{"name": "orphan"},
		{"path": `C:\b.exe`},
	})
	assert.Len(t, artifacts, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Index)
	assert.True(t, errors.Is(errs[0], models.ErrInvalidInput))
}

func TestDecodeRecords_Array(t *testing.T) {
	records, err := DecodeRecords(strings.NewReader(`[{"path":"C:\\a.exe","size":12},{"path":"C:\\b.exe"}]`))
	require.NoError(t, err)
	require.Len(t, records, 2)

	a, err := Normalize(records[0])
	require.NoError(t, err)
	assert.Equal(t, int64(12), a.Size)
}

func TestDecodeRecords_JSONLines(t *testing.T) {
	input := "{\"path\":\"C:\\\\a.exe\"}\n\n{\"path\":\"C:\\\\b.exe\"}\n"
	records, err := DecodeRecords(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDecodeRecords_Malformed(t *testing.T) {
	_, err := DecodeRecords(strings.NewReader("{\"path\":"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		`C:\A\a.exe`:     "a.exe",
		"/usr/bin/tool":  "tool",
		`C:\A\folder\`:   "folder",
		"plain.exe":      "plain.exe",
		`C:/mixed\b.msi`: "b.msi",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}
