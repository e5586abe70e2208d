package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://www.tagesschau.de/inland/artikel.html", false},
		{"public http", "http://example.com/a", false},
		{"empty", "", true},
		{"ftp scheme", "ftp://example.com/a", true},
		{"javascript", "javascript:alert(1)", true},
		{"loopback", "http://127.0.0.1/admin", true},
		{"localhost", "http://localhost:8080/", true},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},
		{"private", "https://10.1.2.3/", true},
		{"ipv6 loopback", "http://[::1]/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsWebURL(t *testing.T) {
	assert.True(t, IsWebURL("https://example.com/a"))
	assert.True(t, IsWebURL("  http://example.com  "))
	assert.False(t, IsWebURL("Der Hund läuft schnell."))
	assert.False(t, IsWebURL("mailto:lena@example.com"))
}

func TestTextSanitizer_Text(t *testing.T) {
	s := NewTextSanitizer()

	got := s.Text(`<html><head><style>p{color:red}</style><script>alert(1)</script></head>` +
		`<body><h1>Titel</h1><p>Der Hund &amp; die Katze</p><p>laufen.</p></body></html>`)

	assert.Equal(t, "Titel Der Hund & die Katze laufen.", got)
	assert.Equal(t, "plain text", s.Text("  plain \n text "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Grü", Truncate("Grüße", 3))
	assert.Equal(t, "Grüße", Truncate("Grüße", 10))
	assert.Equal(t, "Grüße", Truncate("Grüße", 0))
}
