package apikit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"reflect"
)

// Request body content types.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeOctetStream = "application/octet-stream"
)

// bodyCodec decodes request bodies of one content type.
type bodyCodec interface {
	ContentType() string
	Decode(data []byte, v any, strict bool) error
}

var bodyCodecs = map[string]bodyCodec{
	ContentTypeJSON:        jsonCodec{},
	ContentTypeForm:        formCodec{},
	ContentTypeOctetStream: octetCodec{},
}

// codecFor returns the codec for a declared content type.
func codecFor(contentType string) (bodyCodec, bool) {
	c, ok := bodyCodecs[contentType]
	return c, ok
}

// mediaType returns the media type of a Content-Type header value without
// parameters. An unparsable value is returned as-is so it never matches.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Decode(data []byte, v any, strict bool) error {
	if !strict {
		return json.Unmarshal(data, v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// encodeJSON marshals a response body.
func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

type formCodec struct{}

func (formCodec) ContentType() string { return ContentTypeForm }

func (formCodec) Decode(data []byte, v any, strict bool) error {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return err
	}
	if strict {
		return strictFormDecoder.Decode(v, values)
	}
	return formDecoder.Decode(v, values)
}

type octetCodec struct{}

func (octetCodec) ContentType() string { return ContentTypeOctetStream }

func (octetCodec) Decode(data []byte, v any, _ bool) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice || rv.Elem().Type().Elem().Kind() != reflect.Uint8 {
		return fmt.Errorf("octet-stream body must decode into []byte, got %T", v)
	}
	rv.Elem().SetBytes(bytes.Clone(data))
	return nil
}
