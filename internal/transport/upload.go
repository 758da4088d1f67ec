package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"docdash/internal/apierr"
)

// UploadFields carries the optional metadata attached to a file upload.
// Tags are comma-joined and Metadata is JSON-stringified into flat multipart
// fields, which is how the platform API expects them.
type UploadFields struct {
	Collections []string
	Tags        []string
	Metadata    map[string]any
	Extra       map[string]string
}

// UploadFile sends a multipart upload: a "file" field with the given filename
// plus the flattened scalar fields. The whole body is buffered so retries can
// replay it.
func (c *Client) UploadFile(ctx context.Context, path, filename string, file io.Reader, fields UploadFields) (*Response, error) {
	body, contentType, err := buildMultipart(filename, file, fields)
	if err != nil {
		return nil, apierr.Classify(err, map[string]any{"endpoint": path, "method": http.MethodPost})
	}

	return c.Do(ctx, &Request{
		Method:       http.MethodPost,
		Path:         path,
		RawBody:      body,
		RawType:      contentType,
		MutationSafe: true,
	})
}

func buildMultipart(filename string, file io.Reader, fields UploadFields) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file field: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(file, maxBodyBytes)); err != nil {
		return nil, "", fmt.Errorf("failed to read upload file: %w", err)
	}

	if len(fields.Collections) > 0 {
		if err := w.WriteField("collections", strings.Join(fields.Collections, ",")); err != nil {
			return nil, "", err
		}
	}
	if len(fields.Tags) > 0 {
		if err := w.WriteField("tags", strings.Join(fields.Tags, ",")); err != nil {
			return nil, "", err
		}
	}
	if len(fields.Metadata) > 0 {
		meta, err := json.Marshal(fields.Metadata)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(meta)); err != nil {
			return nil, "", err
		}
	}
	for k, v := range fields.Extra {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
