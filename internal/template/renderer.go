// Package template compiles and renders the HTML message body and subject
// line for each recipient.
package template

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/mailrun/mailrun/internal/domain/model"
)

// CompileError indicates the template source does not parse. The whole job
// fails; no recipient is attempted.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return "template does not compile: " + e.Err.Error()
}

func (e *CompileError) Unwrap() error { return e.Err }

// RenderError indicates rendering failed for one recipient. Scoped to that
// recipient; the pipeline records a failure and moves on.
type RenderError struct {
	Email string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render for %s failed: %v", e.Email, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Message is the rendered per-recipient output.
type Message struct {
	Subject string
	HTML    string
}

// Compiled is an immutable compiled message template, safe for concurrent
// renders. Subjects render as plain text; bodies render with HTML
// contextual escaping.
type Compiled struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Renderer compiles message templates with the full sprig function map
// available to template authors.
type Renderer struct {
	textFuncs texttemplate.FuncMap
	htmlFuncs htmltemplate.FuncMap
}

// NewRenderer creates a message template renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		textFuncs: sprig.TxtFuncMap(),
		htmlFuncs: sprig.FuncMap(),
	}
}

// Compile parses the subject line and HTML body once per job. Returns a
// CompileError when either does not parse.
func (r *Renderer) Compile(subject, body string) (*Compiled, error) {
	subj, err := texttemplate.New("subject").Funcs(r.textFuncs).Parse(subject)
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	html, err := htmltemplate.New("body").Funcs(r.htmlFuncs).Parse(body)
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return &Compiled{subject: subj, body: html}, nil
}

// Render produces the personalized message for one recipient. Templates see
// the recipient under both Go-style (.FirstName, .Email) and snake_case
// (.first_name, .email) keys.
func (c *Compiled) Render(rec model.Recipient) (*Message, error) {
	data := map[string]any{
		"FirstName":  rec.FirstName,
		"Email":      rec.Email,
		"first_name": rec.FirstName,
		"email":      rec.Email,
	}

	var subject strings.Builder
	if err := c.subject.Execute(&subject, data); err != nil {
		return nil, &RenderError{Email: rec.Email, Err: err}
	}
	var body strings.Builder
	if err := c.body.Execute(&body, data); err != nil {
		return nil, &RenderError{Email: rec.Email, Err: err}
	}
	return &Message{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
	}, nil
}
