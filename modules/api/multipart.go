package api

import (
	"bytes"
	"io"
	"mime/multipart"
)

// encodeMultipart wraps one file in a multipart form body and returns the
// reader plus the boundary-carrying content type.
func encodeMultipart(field, filename string, content io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
