package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPublisher(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want *string
	}{
		{"nil", nil, nil},
		{"blank", strPtr("   "), nil},
		{"org", strPtr("O=Contoso, C=US"), strPtr("O=Contoso*")},
		{"org after cn", strPtr("CN=Contoso Code Signing, O=Contoso Ltd, L=Redmond, C=US"), strPtr("O=Contoso Ltd*")},
		{"org last", strPtr("CN=Fabrikam, O=Fabrikam Inc"), strPtr("O=Fabrikam Inc*")},
		{"quoted org keeps comma", strPtr(`CN=x, O="Litware, Inc.", C=US`), strPtr(`O=Litware, Inc.*`)},
		{"quoted org with escaped quote", strPtr(`O="Say ""Hi"", Ltd"`), strPtr(`O=Say "Hi", Ltd*`)},
		{"ou is not o", strPtr("CN=x, OU=Dev, C=US"), strPtr("CN=x, OU=Dev, C=US")},
		{"rfc2253 order", strPtr("CN=Tool,O=Northwind,C=US"), strPtr("O=Northwind*")},
		{"no org falls back verbatim", strPtr("Contoso Corporation"), strPtr("Contoso Corporation")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPublisher(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestOrganizationName(t *testing.T) {
	assert.Equal(t, "Contoso", OrganizationName("O=Contoso*"))
	assert.Equal(t, "Contoso Corporation", OrganizationName("Contoso Corporation"))
}

func TestMatchesPublisher(t *testing.T) {
	assert.True(t, MatchesPublisher("O=Contoso*", "O=Contoso, C=US"))
	assert.True(t, MatchesPublisher("O=Contoso*", "CN=Signer, O=Contoso, C=US"))
	assert.True(t, MatchesPublisher("o=contoso*", "O=CONTOSO*"))
	assert.True(t, MatchesPublisher("Contoso Corporation", "contoso corporation"))
	assert.False(t, MatchesPublisher("O=Contoso*", "O=Fabrikam, C=US"))
	assert.False(t, MatchesPublisher("", "O=Contoso"))
	assert.True(t, MatchesPublisher("O=[Weird]*", "O=[Weird] Corp"))
	assert.True(t, MatchesPublisher("O=Litware, Inc.*", `CN=x, O="Litware, Inc.", C=US`))
}

func TestMatchesPath(t *testing.T) {
	assert.True(t, MatchesPath(`C:\Tools\a.exe`, `c:/tools/A.EXE`))
	assert.True(t, MatchesPath(`%PROGRAMFILES%\Contoso\*`, `C:\Program Files\Contoso\bin\app.exe`))
	assert.True(t, MatchesPath(`%WINDIR%\*`, `C:\Windows\notepad.exe`))
	assert.False(t, MatchesPath(`%WINDIR%\*`, `C:\Users\bob\notepad.exe`))
	assert.False(t, MatchesPath("", `C:\a.exe`))
}
