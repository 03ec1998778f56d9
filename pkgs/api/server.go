// Package api serves the public HTTP surface: the content proxy, the upload
// proxy, the JSON-RPC proxy and the records listing.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const readOnlyMessage = "SHC is in read-only mode"

// ContentFetcher resolves a raw content identifier.
type ContentFetcher interface {
	FetchRaw(ctx context.Context, raw string) (*gateway.Content, error)
}

// Uploader pins a batch of files.
type Uploader interface {
	Upload(ctx context.Context, files []pinning.File) ([]pinning.Upload, error)
}

// RecordSource is the session view of the ledger.
type RecordSource interface {
	Records() ([]ledger.Record, bool)
	Reload(ctx context.Context) ([]ledger.Record, error)
	Await(ctx context.Context) ([]ledger.Record, error)
}

// Config wires a Server. Any collaborator may be nil; its routes then
// answer 503.
type Config struct {
	Fetcher       ContentFetcher
	Uploader      Uploader
	Records       RecordSource
	RPCURL        string
	ReadOnly      bool
	PageSize      int
	MaxUploadSize int64 // Per request, bytes
	HTTPClient    *http.Client
}

// Server holds the route handlers.
type Server struct {
	fetcher       ContentFetcher
	uploader      Uploader
	records       RecordSource
	rpcURL        string
	readOnly      bool
	pageSize      int
	maxUploadSize int64
	client        *http.Client
}

// NewServer creates a server from cfg.
func NewServer(cfg Config) *Server {
	s := &Server{
		fetcher:       cfg.Fetcher,
		uploader:      cfg.Uploader,
		records:       cfg.Records,
		rpcURL:        cfg.RPCURL,
		readOnly:      cfg.ReadOnly,
		pageSize:      cfg.PageSize,
		maxUploadSize: cfg.MaxUploadSize,
		client:        cfg.HTTPClient,
	}
	if s.pageSize <= 0 {
		s.pageSize = ledger.DefaultPageSize
	}
	if s.maxUploadSize <= 0 {
		s.maxUploadSize = 100 << 20
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}
	return s
}

// Router builds the gin engine with every public route.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), observe())

	api := router.Group("/api")
	{
		api.GET("/ipfs/fetch", s.Fetch)
		api.POST("/upload", s.Upload)
		api.POST("/rpc-proxy", s.RPCProxy)
		api.GET("/records", s.ListRecords)
		api.GET("/health", s.Health)
	}

	return router
}

// Health reports liveness and mode.
func (s *Server) Health(c *gin.Context) {
	loaded := false
	if s.records != nil {
		_, loaded = s.records.Records()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"read_only":     s.readOnly,
		"ledger_loaded": loaded,
		"timestamp":     time.Now().UTC(),
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.APIRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())

		log.WithFields(log.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"route":      route,
			"status":     status,
			"duration":   time.Since(start).String(),
		}).Debug("Handled request")
	}
}
