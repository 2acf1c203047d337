// Package templating renders a stored Template against a per-send data
// bag, used by both direct submission (SubmitEmailRequest.TemplateID) and
// the cron scheduler's per-tick template sends (§4.1, §4.12). Grounded on
// the reference email-template renderer's html/template + text/template
// split — itself stdlib despite the surrounding service's third-party
// stack, which is why this package follows suit rather than reaching for a
// data-templating library the corpus never uses for this concern.
package templating

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
)

// Rendered is the subject/HTML/text triple produced from a Template plus
// its data bag.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render executes t's subject, HTML, and text fields as templates against
// data. Subject uses text/template (no escaping concerns in a header
// value); HTML uses html/template for context-aware auto-escaping.
func Render(t *models.Template, data map[string]any) (Rendered, error) {
	subject, err := renderText(t.Name+":subject", t.Subject, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}

	var html string
	if t.HTML != "" {
		html, err = renderHTML(t.Name+":html", t.HTML, data)
		if err != nil {
			return Rendered{}, fmt.Errorf("render html body: %w", err)
		}
	}

	var text string
	if t.Text != "" {
		text, err = renderText(t.Name+":text", t.Text, data)
		if err != nil {
			return Rendered{}, fmt.Errorf("render text body: %w", err)
		}
	}

	return Rendered{Subject: subject, HTML: html, Text: text}, nil
}

func renderText(name, body string, data map[string]any) (string, error) {
	tmpl, err := ttemplate.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(name, body string, data map[string]any) (string, error) {
	tmpl, err := htemplate.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
