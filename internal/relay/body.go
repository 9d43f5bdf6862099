package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// ContentKind selects how a request body is encoded.
type ContentKind string

const (
	// KindJSON sends the body as application/json;charset=UTF-8.
	KindJSON ContentKind = "json"
	// KindMultipart sends a Multipart body as multipart/form-data.
	KindMultipart ContentKind = "multipart"
)

const jsonContentType = "application/json;charset=UTF-8"

// Multipart is a multipart/form-data body.
type Multipart struct {
	Fields map[string][]string
	Files  []File
}

// File is one file part of a Multipart body.
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

// encodeBody returns the encoded body and its Content-Type.
func encodeBody(kind ContentKind, body any) (io.Reader, string, error) {
	switch kind {
	case KindMultipart:
		return encodeMultipart(body)
	default:
		return encodeJSON(body)
	}
}

func encodeJSON(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, jsonContentType, nil
	case json.RawMessage:
		return bytes.NewReader(b), jsonContentType, nil
	case []byte:
		return bytes.NewReader(b), jsonContentType, nil
	case string:
		return bytes.NewReader([]byte(b)), jsonContentType, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return bytes.NewReader(data), jsonContentType, nil
}

func encodeMultipart(body any) (io.Reader, string, error) {
	var m *Multipart
	switch b := body.(type) {
	case Multipart:
		m = &b
	case *Multipart:
		m = b
	case nil:
		m = &Multipart{}
	default:
		return nil, "", fmt.Errorf("%w: multipart requests need a relay.Multipart, got %T", ErrUnsupportedBody, body)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, values := range m.Fields {
		for _, v := range values {
			if err := w.WriteField(name, v); err != nil {
				return nil, "", fmt.Errorf("write multipart field %s: %w", name, err)
			}
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create multipart file %s: %w", f.Field, err)
		}
		if f.Content != nil {
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", fmt.Errorf("write multipart file %s: %w", f.Field, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
