package templating

import (
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesAllFields(t *testing.T) {
	tmpl := &models.Template{
		Name:    "welcome",
		Subject: "Hi {{.Name}}",
		HTML:    "<p>Hello {{.Name}}, visit <a href=\"{{.URL}}\">here</a></p>",
		Text:    "Hello {{.Name}}, visit {{.URL}}",
	}
	out, err := Render(tmpl, map[string]any{"Name": "Ada", "URL": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out.Subject)
	assert.Contains(t, out.HTML, "Hello Ada")
	assert.Contains(t, out.Text, "https://example.com")
}

func TestRender_HTMLEscapesUserData(t *testing.T) {
	tmpl := &models.Template{Name: "escape", Subject: "s", HTML: "<p>{{.Name}}</p>"}
	out, err := Render(tmpl, map[string]any{"Name": "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>")
}

func TestRender_MissingKeyDefaultsToZeroValue(t *testing.T) {
	tmpl := &models.Template{Name: "t", Subject: "Hi {{.Missing}}"}
	out, err := Render(tmpl, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi <no value>", out.Subject)
}

func TestRender_EmptyBodiesSkipped(t *testing.T) {
	tmpl := &models.Template{Name: "t", Subject: "s"}
	out, err := Render(tmpl, nil)
	require.NoError(t, err)
	assert.Empty(t, out.HTML)
	assert.Empty(t, out.Text)
}
