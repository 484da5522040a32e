package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Form is a multipart/form-data body: ordered text fields followed by an
// optional file part. The file content is streamed, never buffered.
type Form struct {
	fields []formField
	file   *formFile
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field    string
	filename string
	content  io.Reader
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// Field appends a text field.
func (f *Form) Field(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// File sets the file part. Only one file part is supported.
func (f *Form) File(field, filename string, content io.Reader) *Form {
	f.file = &formFile{field: field, filename: filename, content: content}
	return f
}

// PostForm submits form with POST.
func (c *Client) PostForm(ctx context.Context, path string, query Query, form *Form) (json.RawMessage, error) {
	return c.doForm(ctx, http.MethodPost, path, query, form)
}

// PutForm submits form with PUT.
func (c *Client) PutForm(ctx context.Context, path string, query Query, form *Form) (json.RawMessage, error) {
	return c.doForm(ctx, http.MethodPut, path, query, form)
}

func (c *Client) doForm(ctx context.Context, method, path string, query Query, form *Form) (json.RawMessage, error) {
	if form == nil {
		return nil, fmt.Errorf("%s %s: form required", method, path)
	}
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	contentType := writer.FormDataContentType()
	go func() {
		var err error
		defer func() {
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			if cerr := writer.Close(); cerr != nil {
				_ = pw.CloseWithError(cerr)
				return
			}
			_ = pw.Close()
		}()
		for _, field := range form.fields {
			if err = writer.WriteField(field.name, field.value); err != nil {
				return
			}
		}
		if form.file == nil {
			return
		}
		var part io.Writer
		part, err = writer.CreateFormFile(form.file.field, form.file.filename)
		if err != nil {
			return
		}
		if form.file.content != nil {
			_, err = io.Copy(part, form.file.content)
		}
	}()

	url := c.BuildURL(path, query)
	req, cancel, err := c.newRequest(ctx, method, url, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	defer cancel()
	// Unblocks the writer goroutine when the request ends before the body is drained.
	defer pr.Close()
	req.Header.Set(headerAccept, mediaTypeJSON)
	req.Header.Set(headerContentType, contentType)
	return c.execute(ctx, req)
}
