package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Pinning backends
const (
	PinningPinata = "pinata"
	PinningKubo   = "kubo"
	PinningRemote = "remote" // Through another server's /api/upload
)

// Pending slot backends
const (
	PendingFile   = "file"
	PendingRedis  = "redis"
	PendingSQLite = "sqlite"
	PendingMemory = "memory"
)

// Settings holds all configuration for the records service and CLI
type Settings struct {
	// Ledger
	RPCURL               string
	ChainID              int64
	ContractAddress      string
	ContractABIPath      string // Empty uses the built-in ABI
	SubmitterPrivateKey  string
	ReadOnly             bool
	ContractQueryTimeout time.Duration
	PageSize             int

	// Content gateways, in priority order
	PinataGateway     string
	IPFSGateway       string
	CloudflareGateway string
	GatewayTimeout    time.Duration
	IPFSAPIURL        string
	IPFSNodeFallback  bool

	// Pinning
	PinningBackend    string
	PinataJWT         string
	PinataAPIURL      string
	UploadEndpoint    string
	UploadTimeout     time.Duration
	UploadConcurrency int
	MaxUploadSize     int64

	// Redis Configuration
	RedisHost      string
	RedisPort      string
	RedisDB        int
	RedisPassword  string
	RedisKeyPrefix string

	// Deduplication Configuration
	DedupEnabled        bool
	DedupLocalCacheSize int
	DedupTTL            time.Duration

	// Pending submission slot
	PendingStore string
	PendingPath  string

	// Events
	PublishEvents bool

	// Ledger watch (server only)
	LedgerWatch        bool
	LedgerPollInterval time.Duration
	LedgerStartBlock   uint64

	// API Configuration
	APIHost        string
	APIPort        int
	AdminPort      int
	MetricsEnabled bool

	// Logging
	LogLevel  string
	LogFormat string // text or json
	DebugMode bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("RPC_URL", "https://rpc2.sepolia.org")
	v.SetDefault("CHAIN_ID", 11155111)
	v.SetDefault("CONTRACT_ADDRESS", "")
	v.SetDefault("CONTRACT_ABI_PATH", "")
	v.SetDefault("SUBMITTER_PRIVATE_KEY", "")
	v.SetDefault("SHC_READ_ONLY", false)
	v.SetDefault("CONTRACT_QUERY_TIMEOUT", 15)
	v.SetDefault("PAGE_SIZE", 20)

	v.SetDefault("PINATA_GATEWAY", "https://gateway.pinata.cloud/ipfs")
	v.SetDefault("IPFS_GATEWAY", "https://ipfs.io/ipfs")
	v.SetDefault("CLOUDFLARE_GATEWAY", "https://cloudflare-ipfs.com/ipfs")
	v.SetDefault("GATEWAY_TIMEOUT", 20)
	v.SetDefault("IPFS_API_URL", "")
	v.SetDefault("IPFS_NODE_FALLBACK", false)

	v.SetDefault("PINNING_BACKEND", PinningPinata)
	v.SetDefault("PINATA_JWT", "")
	v.SetDefault("PINATA_API_URL", "https://api.pinata.cloud")
	v.SetDefault("UPLOAD_ENDPOINT", "")
	v.SetDefault("UPLOAD_TIMEOUT", 120)
	v.SetDefault("UPLOAD_CONCURRENCY", 5)
	v.SetDefault("MAX_UPLOAD_SIZE_MB", 100)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_KEY_PREFIX", "shc")

	v.SetDefault("DEDUP_ENABLED", true)
	v.SetDefault("DEDUP_LOCAL_CACHE_SIZE", 10000)
	v.SetDefault("DEDUP_TTL_SECONDS", 0)

	v.SetDefault("PENDING_STORE", PendingFile)
	v.SetDefault("PENDING_PATH", "")

	v.SetDefault("PUBLISH_EVENTS", false)

	v.SetDefault("LEDGER_WATCH", false)
	v.SetDefault("LEDGER_POLL_INTERVAL", 15)
	v.SetDefault("LEDGER_START_BLOCK", 0)

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("ADMIN_PORT", 9090)
	v.SetDefault("METRICS_ENABLED", true)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DEBUG_MODE", false)
}

// LoadConfig reads defaults, the optional file named by SHC_CONFIG and the
// environment, in increasing precedence.
func LoadConfig() (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("SHC_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	s := &Settings{
		RPCURL:               strings.TrimSpace(v.GetString("RPC_URL")),
		ChainID:              v.GetInt64("CHAIN_ID"),
		ContractAddress:      strings.TrimSpace(v.GetString("CONTRACT_ADDRESS")),
		ContractABIPath:      v.GetString("CONTRACT_ABI_PATH"),
		SubmitterPrivateKey:  strings.TrimPrefix(strings.TrimSpace(v.GetString("SUBMITTER_PRIVATE_KEY")), "0x"),
		ReadOnly:             v.GetBool("SHC_READ_ONLY"),
		ContractQueryTimeout: time.Duration(v.GetInt("CONTRACT_QUERY_TIMEOUT")) * time.Second,
		PageSize:             v.GetInt("PAGE_SIZE"),

		PinataGateway:     v.GetString("PINATA_GATEWAY"),
		IPFSGateway:       v.GetString("IPFS_GATEWAY"),
		CloudflareGateway: v.GetString("CLOUDFLARE_GATEWAY"),
		GatewayTimeout:    time.Duration(v.GetInt("GATEWAY_TIMEOUT")) * time.Second,
		IPFSAPIURL:        v.GetString("IPFS_API_URL"),
		IPFSNodeFallback:  v.GetBool("IPFS_NODE_FALLBACK"),

		PinningBackend:    strings.ToLower(v.GetString("PINNING_BACKEND")),
		PinataJWT:         v.GetString("PINATA_JWT"),
		PinataAPIURL:      v.GetString("PINATA_API_URL"),
		UploadEndpoint:    v.GetString("UPLOAD_ENDPOINT"),
		UploadTimeout:     time.Duration(v.GetInt("UPLOAD_TIMEOUT")) * time.Second,
		UploadConcurrency: v.GetInt("UPLOAD_CONCURRENCY"),
		MaxUploadSize:     v.GetInt64("MAX_UPLOAD_SIZE_MB") << 20,

		RedisHost:      v.GetString("REDIS_HOST"),
		RedisPort:      v.GetString("REDIS_PORT"),
		RedisDB:        v.GetInt("REDIS_DB"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisKeyPrefix: v.GetString("REDIS_KEY_PREFIX"),

		DedupEnabled:        v.GetBool("DEDUP_ENABLED"),
		DedupLocalCacheSize: v.GetInt("DEDUP_LOCAL_CACHE_SIZE"),
		DedupTTL:            time.Duration(v.GetInt("DEDUP_TTL_SECONDS")) * time.Second,

		PendingStore: strings.ToLower(v.GetString("PENDING_STORE")),
		PendingPath:  v.GetString("PENDING_PATH"),

		PublishEvents: v.GetBool("PUBLISH_EVENTS"),

		LedgerWatch:        v.GetBool("LEDGER_WATCH"),
		LedgerPollInterval: time.Duration(v.GetInt("LEDGER_POLL_INTERVAL")) * time.Second,
		LedgerStartBlock:   v.GetUint64("LEDGER_START_BLOCK"),

		APIHost:        v.GetString("API_HOST"),
		APIPort:        v.GetInt("API_PORT"),
		AdminPort:      v.GetInt("ADMIN_PORT"),
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
		DebugMode: v.GetBool("DEBUG_MODE"),
	}

	if s.PendingPath == "" {
		s.PendingPath = defaultPendingPath(s.PendingStore)
	}

	s.ConfigureLogging()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	s.logSummary()
	return s, nil
}

func defaultPendingPath(store string) string {
	dir := ".shc"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".shc")
	}
	if store == PendingSQLite {
		return filepath.Join(dir, "pending.db")
	}
	return filepath.Join(dir, "pending.json")
}

// ConfigureLogging sets the logrus level and formatter.
func (s *Settings) ConfigureLogging() {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if s.DebugMode {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if s.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// Validate checks values that are wrong regardless of which command runs.
func (s *Settings) Validate() error {
	if s.ContractAddress != "" && !common.IsHexAddress(s.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS %q is not a hex address", s.ContractAddress)
	}

	switch s.PinningBackend {
	case PinningPinata, PinningKubo, PinningRemote:
	default:
		return fmt.Errorf("unknown PINNING_BACKEND %q", s.PinningBackend)
	}

	switch s.PendingStore {
	case PendingFile, PendingRedis, PendingSQLite, PendingMemory:
	default:
		return fmt.Errorf("unknown PENDING_STORE %q", s.PendingStore)
	}
	if s.PendingStore == PendingRedis && s.RedisHost == "" {
		return errors.New("REDIS_HOST required when PENDING_STORE=redis")
	}

	if s.SubmitterPrivateKey != "" {
		if _, err := crypto.HexToECDSA(s.SubmitterPrivateKey); err != nil {
			return fmt.Errorf("invalid SUBMITTER_PRIVATE_KEY: %w", err)
		}
	}

	if s.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", s.PageSize)
	}
	if s.LedgerWatch && s.LedgerPollInterval <= 0 {
		return fmt.Errorf("LEDGER_POLL_INTERVAL must be positive, got %s", s.LedgerPollInterval)
	}
	return nil
}

// ValidateRead checks what ledger reads need.
func (s *Settings) ValidateRead() error {
	if s.ContractAddress == "" {
		return errors.New("CONTRACT_ADDRESS is required")
	}
	if s.RPCURL == "" {
		return errors.New("RPC_URL is required")
	}
	return nil
}

// ValidateWrite checks what submissions and uploads need. Read-only mode
// needs nothing beyond reads.
func (s *Settings) ValidateWrite() error {
	if err := s.ValidateRead(); err != nil {
		return err
	}
	if s.ReadOnly {
		return nil
	}
	if s.SubmitterPrivateKey == "" {
		return errors.New("SUBMITTER_PRIVATE_KEY is required unless SHC_READ_ONLY=true")
	}
	return s.ValidatePinning()
}

// ValidatePinning checks the configured pinning backend.
func (s *Settings) ValidatePinning() error {
	if s.ReadOnly {
		return nil
	}
	switch s.PinningBackend {
	case PinningPinata:
		if s.PinataJWT == "" {
			return errors.New("PINATA_JWT is required for the pinata backend")
		}
	case PinningKubo:
		if s.IPFSAPIURL == "" {
			return errors.New("IPFS_API_URL is required for the kubo backend")
		}
	case PinningRemote:
		if s.UploadEndpoint == "" {
			return errors.New("UPLOAD_ENDPOINT is required for the remote backend")
		}
	}
	return nil
}

// Gateways returns the configured gateway bases in priority order.
func (s *Settings) Gateways() []string {
	var out []string
	for _, g := range []string{s.PinataGateway, s.IPFSGateway, s.CloudflareGateway} {
		if g = strings.TrimRight(strings.TrimSpace(g), "/"); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// Contract returns the parsed contract address.
func (s *Settings) Contract() common.Address {
	return common.HexToAddress(s.ContractAddress)
}

// SubmitterAddress derives the account of the configured key.
func (s *Settings) SubmitterAddress() (common.Address, error) {
	if s.SubmitterPrivateKey == "" {
		return common.Address{}, errors.New("no submitter key configured")
	}
	key, err := crypto.HexToECDSA(s.SubmitterPrivateKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid submitter key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (s *Settings) RedisAddr() string {
	if s.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.RedisHost, s.RedisPort)
}

func (s *Settings) logSummary() {
	fields := log.Fields{
		"rpc_url":         s.RPCURL,
		"chain_id":        s.ChainID,
		"contract":        s.ContractAddress,
		"read_only":       s.ReadOnly,
		"gateways":        len(s.Gateways()),
		"pinning_backend": s.PinningBackend,
		"pending_store":   s.PendingStore,
	}
	if addr := s.RedisAddr(); addr != "" {
		fields["redis"] = fmt.Sprintf("%s (DB %d)", addr, s.RedisDB)
	}
	if s.DedupEnabled {
		fields["dedup_cache"] = s.DedupLocalCacheSize
	}
	if s.LedgerWatch {
		fields["ledger_poll"] = s.LedgerPollInterval.String()
	}
	log.WithFields(fields).Debug("Configuration loaded")
}
