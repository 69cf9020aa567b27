package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/yourorg/arca/internal/storage"
)

// Content is a rendered newsletter in both formats.
type Content struct {
	HTML string
	Text string
}

type contentData struct {
	Updates        []string
	Recommendation string
}

// Templates renders newsletter bodies. Both templates receive .Updates and
// .Recommendation.
type Templates struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

const defaultHTML = `<html><body><ul>{{range .Updates}}<li>{{.}}</li>{{else}}<li>No updates</li>{{end}}</ul><p>{{.Recommendation}}</p></body></html>`

const defaultText = `Updates:
{{if .Updates}}{{range .Updates}}
 - {{.}}{{end}}{{else}}No updates{{end}}

Recommendation: {{.Recommendation}}`

// DefaultTemplates returns the built-in layouts.
func DefaultTemplates() *Templates {
	return &Templates{
		html: htmltemplate.Must(htmltemplate.New("html").Parse(defaultHTML)),
		text: texttemplate.Must(texttemplate.New("text").Parse(defaultText)),
	}
}

// Templates from the earlier notifier use bare {{updates}} and
// {{recommendation}} placeholders. They are rewritten into actions before
// parsing.
var (
	legacyHTML = strings.NewReplacer(
		"{{updates}}", "{{range .Updates}}<li>{{.}}</li>{{else}}<li>No updates</li>{{end}}",
		"{{recommendation}}", "{{.Recommendation}}",
	)
	legacyText = strings.NewReplacer(
		"{{updates}}", "{{if .Updates}}{{range .Updates}}\n - {{.}}{{end}}{{else}}No updates{{end}}",
		"{{recommendation}}", "{{.Recommendation}}",
	)
)

// LoadTemplates reads overrides from storage. A missing key keeps the built-in
// layout for that format; a template that does not parse is an error.
func LoadTemplates(ctx context.Context, st storage.Storage, htmlKey, textKey string) (*Templates, error) {
	t := DefaultTemplates()
	if body, err := readOptional(ctx, st, htmlKey); err != nil {
		return nil, err
	} else if body != nil {
		parsed, err := htmltemplate.New("html").Parse(legacyHTML.Replace(string(body)))
		if err != nil {
			return nil, fmt.Errorf("parse html template: %w", err)
		}
		t.html = parsed
	}
	if body, err := readOptional(ctx, st, textKey); err != nil {
		return nil, err
	} else if body != nil {
		parsed, err := texttemplate.New("text").Parse(legacyText.Replace(string(body)))
		if err != nil {
			return nil, fmt.Errorf("parse text template: %w", err)
		}
		t.text = parsed
	}
	return t, nil
}

func readOptional(ctx context.Context, st storage.Storage, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	body, err := st.GetObject(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", key, err)
	}
	return body, nil
}

func (t *Templates) Render(updates []string, recommendation string) (Content, error) {
	data := contentData{Updates: updates, Recommendation: recommendation}
	var html, text bytes.Buffer
	if err := t.html.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("render html: %w", err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Content{}, fmt.Errorf("render text: %w", err)
	}
	return Content{HTML: html.String(), Text: text.String()}, nil
}
