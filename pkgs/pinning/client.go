package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Client uploads through a remote upload endpoint (POST /api/upload) instead
// of talking to a pinning backend directly, so the pinning credentials stay
// on the server.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a client for endpoint, e.g. http://localhost:8080/api/upload.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type uploadResponse struct {
	Uploads []Upload `json:"uploads"`
	Error   string   `json:"error"`
}

// Upload sends all files in one multipart request.
func (c *Client) Upload(ctx context.Context, files []File) ([]Upload, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create form part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write form part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	var out uploadResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		switch resp.StatusCode {
		case http.StatusServiceUnavailable:
			return nil, fmt.Errorf("%w: %s", ErrReadOnly, msg)
		default:
			return nil, fmt.Errorf("upload endpoint responded %d: %s", resp.StatusCode, msg)
		}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", decodeErr)
	}
	return out.Uploads, nil
}
