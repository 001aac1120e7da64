package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/domain/model"
)

func TestRendererPersonalization(t *testing.T) {
	r := NewRenderer()
	compiled, err := r.Compile(
		"Welcome, {{.FirstName}}!",
		"<p>Hi {{.FirstName}}, this went to {{.Email}}.</p>",
	)
	require.NoError(t, err)

	msg, err := compiled.Render(model.Recipient{Email: "alice@example.com", FirstName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Alice!", msg.Subject)
	assert.Equal(t, "<p>Hi Alice, this went to alice@example.com.</p>", msg.HTML)
}

func TestRendererSnakeCaseKeys(t *testing.T) {
	r := NewRenderer()
	compiled, err := r.Compile("Hi {{.first_name}}", "<p>{{.email}}</p>")
	require.NoError(t, err)

	msg, err := compiled.Render(model.Recipient{Email: "bob@example.com", FirstName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bob", msg.Subject)
	assert.Equal(t, "<p>bob@example.com</p>", msg.HTML)
}

func TestRendererSprigFunctions(t *testing.T) {
	r := NewRenderer()
	compiled, err := r.Compile(
		`{{.FirstName | upper}}`,
		`<p>{{.FirstName | default "friend" | title}}</p>`,
	)
	require.NoError(t, err)

	msg, err := compiled.Render(model.Recipient{Email: "a@b.com", FirstName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "ALICE", msg.Subject)
	assert.Equal(t, "<p>Alice</p>", msg.HTML)

	msg, err = compiled.Render(model.Recipient{Email: "b@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Friend</p>", msg.HTML)
}

func TestRendererSubjectNotHTMLEscaped(t *testing.T) {
	r := NewRenderer()
	compiled, err := r.Compile("Deals for {{.FirstName}}", "<p>hi</p>")
	require.NoError(t, err)

	msg, err := compiled.Render(model.Recipient{Email: "x@y.com", FirstName: "O'Brien & Sons"})
	require.NoError(t, err)
	assert.Equal(t, "Deals for O'Brien & Sons", msg.Subject)
}

func TestRendererBodyEscapesRecipientData(t *testing.T) {
	r := NewRenderer()
	compiled, err := r.Compile("s", "<p>{{.FirstName}}</p>")
	require.NoError(t, err)

	msg, err := compiled.Render(model.Recipient{Email: "x@y.com", FirstName: "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;</p>", msg.HTML)
}

func TestRendererCompileError(t *testing.T) {
	r := NewRenderer()

	_, err := r.Compile("ok", "<p>{{.FirstName</p>")
	require.Error(t, err)
	var compileErr *CompileError
	assert.ErrorAs(t, err, &compileErr)

	_, err = r.Compile("{{bad subject", "<p>ok</p>")
	require.Error(t, err)
	assert.ErrorAs(t, err, &compileErr)
}

func TestRendererRenderErrorIsRecipientScoped(t *testing.T) {
	r := NewRenderer()
	// fail raises an execution error only when evaluated.
	compiled, err := r.Compile("s", `{{if not .FirstName}}{{fail "no name"}}{{end}}<p>{{.FirstName}}</p>`)
	require.NoError(t, err)

	_, err = compiled.Render(model.Recipient{Email: "bad@example.com"})
	require.Error(t, err)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "bad@example.com", renderErr.Email)

	// The same compiled template still renders for a good recipient.
	msg, err := compiled.Render(model.Recipient{Email: "ok@example.com", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Ada")
}
