package ipfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	files "github.com/ipfs/boxo/files"
	"github.com/ipfs/boxo/path"
	"github.com/ipfs/go-cid"
	ipfsApi "github.com/ipfs/kubo/client/rpc"
	"github.com/ipfs/kubo/core/coreiface/options"
	log "github.com/sirupsen/logrus"
)

// Client wraps the kubo RPC client for a local or private IPFS node. It is
// used as an alternative pinning backend and as an optional last-resort
// retrieval source behind the public gateways.
type Client struct {
	api     *ipfsApi.HttpApi
	apiURL  string
	timeout time.Duration
}

// NewClient creates a new IPFS node client
func NewClient(apiURL string, timeout time.Duration) (*Client, error) {
	if apiURL == "" {
		apiURL = "127.0.0.1:5001" // Default IPFS API endpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Handle different input formats
	if strings.HasPrefix(apiURL, "/ip4/") || strings.HasPrefix(apiURL, "/dns/") {
		// Convert multiaddr: /ip4/172.29.0.2/tcp/5001 -> http://172.29.0.2:5001
		parts := strings.Split(apiURL, "/")
		if len(parts) >= 5 {
			apiURL = fmt.Sprintf("http://%s:%s", parts[2], parts[4])
		}
	} else if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		apiURL = "http://" + apiURL
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: true,
		},
	}

	api, err := ipfsApi.NewURLApiWithClient(apiURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create IPFS client: %w", err)
	}

	return &Client{api: api, apiURL: apiURL, timeout: timeout}, nil
}

// Name identifies the node in logs and metrics.
func (c *Client) Name() string {
	return "ipfs-node"
}

// AddAndPin stores data as a CIDv1 UnixFS file, pins it, and returns the CID.
func (c *Client) AddAndPin(ctx context.Context, data []byte) (cid.Cid, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.api.Unixfs().Add(ctx, files.NewBytesFile(data), options.Unixfs.CidVersion(1))
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to add to IPFS: %w", err)
	}

	if err := c.api.Pin().Add(ctx, p); err != nil {
		return cid.Undef, fmt.Errorf("failed to pin %s: %w", p.RootCid(), err)
	}

	log.WithFields(log.Fields{
		"cid":  p.RootCid().String(),
		"size": len(data),
	}).Debug("Stored and pinned content on IPFS node")

	return p.RootCid(), nil
}

// Cat retrieves the file at "/ipfs/<ref>" where ref is "<cid>[/<sub-path>]".
func (c *Client) Cat(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ipfsPath, err := path.NewPath("/ipfs/" + strings.TrimPrefix(ref, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid IPFS path %s: %w", ref, err)
	}

	node, err := c.api.Unixfs().Get(ctx, ipfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get from IPFS: %w", err)
	}
	defer node.Close()

	file := files.ToFile(node)
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", ref)
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	return buf.Bytes(), nil
}

// IsAvailable checks if the IPFS node is accessible
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.api.Key().Self(ctx)
	return err == nil
}
