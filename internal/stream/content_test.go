package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ContentType
		success bool
	}{
		{"ok prefix", "[OK]\n\nfile1\nfile2", ContentSuccess, true},
		{"ok prefix with json body", "[OK]\n\n{\"rows\": 3}", ContentJSON, true},
		{"failed prefix", "[FAILED] command exited with 1", ContentError, false},
		{"bare json array", "  [1, 2, 3]  ", ContentJSON, true},
		{"broken json", "{not json}", ContentText, true},
		{"traceback", "Traceback (most recent call last):\n  File x", ContentError, false},
		{"error word", "ValueError: bad", ContentError, false},
		{"markdown heading", "# Title\n\nbody", ContentMarkdown, true},
		{"markdown bold", "some **bold** text", ContentMarkdown, true},
		{"plain", "hello world", ContentText, true},
		{"empty", "", ContentText, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyContent(tc.content))
			assert.Equal(t, tc.success, IsSuccess(tc.content))
		})
	}
}

func TestExtractBody(t *testing.T) {
	assert.Equal(t, "payload", ExtractBody("[OK]\n\npayload\n"))
	assert.Equal(t, "", ExtractBody("[OK]\nonly one line"))
}

func TestContentTypeString(t *testing.T) {
	assert.Equal(t, "json", ContentJSON.String())
	assert.Equal(t, "text", ContentType(99).String())
}
