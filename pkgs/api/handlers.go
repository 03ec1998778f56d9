package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ASingh442/sikh-historical-chain/pkgs/session"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Fetch proxies content through the gateway resolver.
// GET /api/ipfs/fetch?hash=<raw>
func (s *Server) Fetch(c *gin.Context) {
	if s.fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Content fetching is not configured"})
		return
	}

	raw := c.Query("hash")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing CID"})
		return
	}

	content, err := s.fetcher.FetchRaw(c.Request.Context(), raw)
	if err != nil {
		var exhausted *gateway.ExhaustedError
		switch {
		case errors.Is(err, gateway.ErrInvalidReference):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid CID"})
		case errors.As(err, &exhausted):
			details := make([]gin.H, 0, len(exhausted.Attempts))
			for _, a := range exhausted.Attempts {
				details = append(details, gin.H{"gateway": a.Candidate, "error": a.Err.Error()})
			}
			log.WithError(err).WithField("hash", raw).Warn("Content fetch failed on every gateway")
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "Failed to fetch from all gateways",
				"details": details,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, content.ContentType, content.Data)
}

// Upload pins the multipart "file" fields.
// POST /api/upload
func (s *Server) Upload(c *gin.Context) {
	if s.readOnly {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": readOnlyMessage})
		return
	}
	if s.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	headers := form.File["file"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	if len(headers) > pinning.MaxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Max %d files per block", pinning.MaxFiles)})
		return
	}

	files := make([]pinning.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to read %s", h.Filename)})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to read %s", h.Filename)})
			return
		}

		name := h.Filename
		if name == "" {
			name = "upload"
		}
		files = append(files, pinning.File{
			Name:        name,
			ContentType: h.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	uploads, err := s.uploader.Upload(c.Request.Context(), files)
	if err != nil {
		var pinErr *pinning.PinError
		switch {
		case errors.Is(err, pinning.ErrReadOnly):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": readOnlyMessage})
		case errors.Is(err, pinning.ErrNoFiles), errors.Is(err, pinning.ErrTooManyFiles):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &pinErr):
			log.WithError(err).Error("Pinning upload failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Pinning upload failed", "details": err.Error()})
		default:
			log.WithError(err).Error("Server upload error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}

type rpcEnvelope struct {
	Method string `json:"method"`
}

// RPCProxy forwards a JSON-RPC request to the configured node. In read-only
// mode only eth_call is allowed through.
// POST /api/rpc-proxy
func (s *Server) RPCProxy(c *gin.Context) {
	if s.rpcURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "RPC endpoint is not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
		return
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Batches arrive as arrays; method is checked per call below.
		var batch []rpcEnvelope
		if err := json.Unmarshal(body, &batch); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
			return
		}
		for _, call := range batch {
			if s.blocked(call.Method) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Write operations disabled (read-only mode)"})
				return
			}
		}
	} else if s.blocked(envelope.Method) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Write operations disabled (read-only mode)"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.rpcURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.WithError(err).Error("RPC proxy request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
		return
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": err.Error()})
		return
	}

	trimmed := bytes.TrimSpace(text)
	if bytes.HasPrefix(trimmed, []byte("<!DOCTYPE")) || bytes.HasPrefix(trimmed, []byte("<html")) {
		log.WithField("rpc_url", s.rpcURL).Error("RPC responded with HTML instead of JSON")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Invalid response from RPC endpoint"})
		return
	}
	if !json.Valid(trimmed) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error", "details": "RPC endpoint returned malformed JSON"})
		return
	}

	c.Data(http.StatusOK, "application/json", trimmed)
}

func (s *Server) blocked(method string) bool {
	return s.readOnly && method != "" && !strings.HasPrefix(method, "eth_call")
}

// ListRecords returns one page of the ledger, newest first.
// GET /api/records?page=&q=&verified=&hash=&refresh=
func (s *Server) ListRecords(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger is not configured"})
		return
	}

	records, loaded := s.records.Records()
	if !loaded || c.Query("refresh") == "true" {
		var err error
		records, err = s.records.Reload(c.Request.Context())
		if errors.Is(err, session.ErrSuperseded) {
			// A newer request took over the load; serve its result.
			records, err = s.records.Await(c.Request.Context())
		}
		if err != nil {
			log.WithError(err).Warn("Ledger load failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Unable to load ledger entries, try again.", "details": err.Error()})
			return
		}
	}

	verifiedOnly := c.Query("verified") == "true"
	filtered := ledger.Filter(records, c.Query("q"), verifiedOnly)

	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
			return
		}
		page = n
	}
	if hash := c.Query("hash"); hash != "" {
		p, ok := ledger.PageOfHash(filtered, s.pageSize, hash)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "No record carries that hash"})
			return
		}
		page = p
	}

	start, end := ledger.PageRange(len(filtered), s.pageSize, page)
	entries := ledger.Page(filtered, s.pageSize, page)

	c.JSON(http.StatusOK, gin.H{
		"records":    entries,
		"page":       page,
		"pageSize":   s.pageSize,
		"total":      len(filtered),
		"totalPages": ledger.TotalPages(len(filtered), s.pageSize),
		"rangeStart": start,
		"rangeEnd":   end,
	})
}
