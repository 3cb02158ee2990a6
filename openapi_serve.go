package apikit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteJSON writes the document as indented JSON to w.
func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteYAML writes the document as YAML to w. Keys keep the sorted order of
// the JSON form.
func (d *Document) WriteYAML(w io.Writer) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles the JSON input produced.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

var errNoRegistry = errors.New("document requested outside a server")

// ServeDocument registers a hidden GET endpoint at pattern that serves the
// OpenAPI document as JSON.
func ServeDocument(reg Registrar, pattern string, opts ...RouteOption) error {
	return serveDocument(reg, pattern, "application/json", (*Document).WriteJSON, opts)
}

// ServeDocumentYAML registers a hidden GET endpoint at pattern that serves the
// OpenAPI document as YAML.
func ServeDocumentYAML(reg Registrar, pattern string, opts ...RouteOption) error {
	return serveDocument(reg, pattern, "application/yaml", (*Document).WriteYAML, opts)
}

func serveDocument(reg Registrar, pattern, contentType string, write func(*Document, io.Writer) error, opts []RouteOption) error {
	h := func(ctx context.Context, _ *Void) (*Stream, error) {
		r, ok := registryFrom(ctx)
		if !ok {
			return nil, Wrap(errNoRegistry)
		}
		var buf bytes.Buffer
		if err := write(r.Document(), &buf); err != nil {
			return nil, err
		}
		return &Stream{ContentType: contentType, Body: &buf}, nil
	}
	opts = append([]RouteOption{WithHidden()}, opts...)
	return Get(reg, pattern, h, opts...)
}
