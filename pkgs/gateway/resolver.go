package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a single candidate attempt.
	DefaultTimeout = 20 * time.Second

	nodeCandidatePrefix = "ipfs-node:"
	maxErrorBody        = 512
)

// DefaultGateways is the fixed priority order: the pinning service's own
// gateway first, then two public fallbacks.
func DefaultGateways() []string {
	return []string{
		"https://gateway.pinata.cloud/ipfs",
		"https://ipfs.io/ipfs",
		"https://cloudflare-ipfs.com/ipfs",
	}
}

// NodeFetcher reads content directly from an IPFS node.
type NodeFetcher interface {
	Cat(ctx context.Context, ref string) ([]byte, error)
}

// Config configures a Resolver.
type Config struct {
	Gateways   []string      // Base URLs in priority order, e.g. https://ipfs.io/ipfs
	Timeout    time.Duration // Per-attempt timeout
	HTTPClient *http.Client
	Node       NodeFetcher // Optional last-resort candidate after every gateway
	MaxBytes   int64       // Response size limit per attempt, 0 for none
}

// Content is a successfully resolved file.
type Content struct {
	Data        []byte
	ContentType string
	Source      string // Candidate that served the content
}

// Resolver turns a content reference into bytes, hiding the unreliability
// of any single gateway. Candidates are tried strictly in order and the
// first success wins; nothing is cached between calls.
type Resolver struct {
	gateways []string
	timeout  time.Duration
	client   *http.Client
	node     NodeFetcher
	maxBytes int64
}

// NewResolver creates a resolver. An empty gateway list falls back to
// DefaultGateways.
func NewResolver(cfg Config) *Resolver {
	gateways := make([]string, 0, len(cfg.Gateways))
	for _, g := range cfg.Gateways {
		if g = strings.TrimRight(strings.TrimSpace(g), "/"); g != "" {
			gateways = append(gateways, g)
		}
	}
	if len(gateways) == 0 {
		gateways = DefaultGateways()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	return &Resolver{
		gateways: gateways,
		timeout:  timeout,
		client:   client,
		node:     cfg.Node,
		maxBytes: cfg.MaxBytes,
	}
}

// Candidates returns the ordered retrieval URLs for ref.
func (r *Resolver) Candidates(ref contentref.Reference) []string {
	suffix := ref.ID
	if ref.Path != "" {
		suffix += "/" + ref.Path
	}

	candidates := make([]string, 0, len(r.gateways)+1)
	for _, base := range r.gateways {
		candidates = append(candidates, base+"/"+suffix)
	}
	if r.node != nil {
		candidates = append(candidates, nodeCandidatePrefix+suffix)
	}
	return candidates
}

// FetchRaw parses raw and fetches it. Unparsable input yields
// ErrInvalidReference without any network call.
func (r *Resolver) FetchRaw(ctx context.Context, raw string) (*Content, error) {
	ref, ok := contentref.Parse(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}
	return r.Fetch(ctx, ref)
}

// Fetch tries every candidate in order and returns the first success. When
// all fail it returns an *ExhaustedError carrying each candidate's failure.
// It never retries on its own.
func (r *Resolver) Fetch(ctx context.Context, ref contentref.Reference) (*Content, error) {
	if ref.IsZero() {
		return nil, ErrInvalidReference
	}

	candidates := r.Candidates(ref)
	attempts := make([]Attempt, 0, len(candidates))

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			// Caller navigated away; abandon the remaining candidates.
			return nil, err
		}

		content, err := r.try(ctx, candidate)
		label := gatewayLabel(candidate)
		if err == nil {
			metrics.GatewayAttempts.WithLabelValues(label, "success").Inc()
			log.WithFields(log.Fields{
				"ref":     ref.String(),
				"gateway": label,
				"bytes":   len(content.Data),
			}).Debug("Resolved content")
			return content, nil
		}

		metrics.GatewayAttempts.WithLabelValues(label, "failure").Inc()
		log.WithFields(log.Fields{
			"ref":     ref.String(),
			"gateway": label,
		}).WithError(err).Debug("Gateway attempt failed, trying next candidate")
		attempts = append(attempts, Attempt{Candidate: candidate, Err: err})
	}

	metrics.GatewayExhausted.Inc()
	return nil, &ExhaustedError{Ref: ref.String(), Attempts: attempts}
}

func (r *Resolver) try(ctx context.Context, candidate string) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if strings.HasPrefix(candidate, nodeCandidatePrefix) {
		return r.tryNode(ctx, strings.TrimPrefix(candidate, nodeCandidatePrefix))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s", r.timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var body io.Reader = resp.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", r.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Content{Data: data, ContentType: contentType, Source: candidate}, nil
}

func (r *Resolver) tryNode(ctx context.Context, ref string) (*Content, error) {
	data, err := r.node.Cat(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Content{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Source:      nodeCandidatePrefix + ref,
	}, nil
}

// gatewayLabel keeps metric cardinality bounded to one value per gateway.
func gatewayLabel(candidate string) string {
	if strings.HasPrefix(candidate, nodeCandidatePrefix) {
		return "ipfs-node"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
