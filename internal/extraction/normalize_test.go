package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDocument_StripsMarkup(t *testing.T) {
	body := []byte(`<html>
		<head>
			<title>Form 10-K</title>
			<style>p { color: red; }</style>
			<script>trackPageView();</script>
		</head>
		<body>
			<p>Total   revenue was
			$1.2 million.</p>
			<noscript>enable javascript</noscript>
		</body>
	</html>`)

	text, err := NormalizeDocument(body)
	require.NoError(t, err)

	assert.Contains(t, text, "Total revenue was $1.2 million.")
	assert.NotContains(t, text, "trackPageView")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "enable javascript")
	assert.NotContains(t, text, "\n")
}

func TestNormalizeDocument_Deterministic(t *testing.T) {
	body := []byte("<html><body><p>Net income was $5 million.</p></body></html>")

	first, err := NormalizeDocument(body)
	require.NoError(t, err)

	second, err := NormalizeDocument(body)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalizeDocument_PlainTextPassesThrough(t *testing.T) {
	text, err := NormalizeDocument([]byte("Total  assets were $9   billion."))
	require.NoError(t, err)

	assert.Equal(t, "Total assets were $9 billion.", text)
}

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tabs and newlines", "a\tb\nc", "a b c"},
		{"runs of spaces", "a    b", "a b"},
		{"leading and trailing", "  a b  ", "a b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CollapseWhitespace(tt.in); got != tt.want {
				t.Errorf("CollapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
