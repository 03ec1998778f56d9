package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPinataAPI is the Pinata pinning endpoint base.
const DefaultPinataAPI = "https://api.pinata.cloud"

// PinataPinner pins files through Pinata's pinFileToIPFS endpoint.
type PinataPinner struct {
	jwt    string
	apiURL string
	client *http.Client
}

// NewPinataPinner creates a pinner authenticated with jwt.
func NewPinataPinner(jwt, apiURL string, timeout time.Duration) (*PinataPinner, error) {
	if strings.TrimSpace(jwt) == "" {
		return nil, fmt.Errorf("missing PINATA_JWT")
	}
	if apiURL == "" {
		apiURL = DefaultPinataAPI
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PinataPinner{
		jwt:    jwt,
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *PinataPinner) Name() string {
	return "pinata"
}

type pinataResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Pin uploads data as a single file named name and returns its CID.
func (p *PinataPinner) Pin(ctx context.Context, name string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read pinata response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"file":   name,
		}).Error("Pinata upload error")
		return "", fmt.Errorf("pinata responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out pinataResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata response carried no IpfsHash")
	}
	return out.IpfsHash, nil
}
