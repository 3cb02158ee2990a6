package apikit

import (
	"bytes"
	"context"
	"html/template"
)

// DocsOption configures the docs UI.
type DocsOption func(*docsConfig)

type docsConfig struct {
	title       string
	documentURL string
}

// WithDocsTitle sets the page title for the docs UI. It defaults to the API title.
func WithDocsTitle(title string) DocsOption {
	return func(c *docsConfig) {
		c.title = title
	}
}

// WithDocsDocumentURL sets the URL the viewer loads the document from.
func WithDocsDocumentURL(url string) DocsOption {
	return func(c *docsConfig) {
		c.documentURL = url
	}
}

var docsTemplate = template.Must(template.New("docs").Parse(docsHTML))

// ServeDocs registers a hidden GET endpoint at pattern serving an interactive
// API documentation page. It renders Stoplight Elements pointing at the
// document served by ServeDocument.
func ServeDocs(reg Registrar, pattern string, opts ...DocsOption) error {
	cfg := docsConfig{documentURL: "/openapi.json"}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := func(ctx context.Context, _ *Void) (*Stream, error) {
		page := docsPage{Title: cfg.title, DocumentURL: cfg.documentURL}
		if page.Title == "" {
			page.Title = "API"
			if r, ok := registryFrom(ctx); ok {
				page.Title = r.Info().Title
			}
		}
		var buf bytes.Buffer
		if err := docsTemplate.Execute(&buf, page); err != nil {
			return nil, err
		}
		return &Stream{ContentType: "text/html; charset=utf-8", Body: &buf}, nil
	}
	return Get(reg, pattern, h, WithHidden())
}

type docsPage struct {
	Title       string
	DocumentURL string
}

const docsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements/styles.min.css">
  <script src="https://unpkg.com/@stoplight/elements/web-components.min.js"></script>
</head>
<body>
  <elements-api
    apiDescriptionUrl="{{.DocumentURL}}"
    router="hash"
    layout="sidebar"
  />
</body>
</html>`
