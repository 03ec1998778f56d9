// Package app builds the object graph shared by the CLI and the server from
// loaded settings.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ASingh442/sikh-historical-chain/config"
	abiloader "github.com/ASingh442/sikh-historical-chain/pkgs/abi"
	"github.com/ASingh442/sikh-historical-chain/pkgs/api"
	"github.com/ASingh442/sikh-historical-chain/pkgs/deduplication"
	"github.com/ASingh442/sikh-historical-chain/pkgs/eventmonitor"
	"github.com/ASingh442/sikh-historical-chain/pkgs/events"
	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ipfs"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pending"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ASingh442/sikh-historical-chain/pkgs/reconcile"
	"github.com/ASingh442/sikh-historical-chain/pkgs/recordcache"
	shcredis "github.com/ASingh442/sikh-historical-chain/pkgs/redis"
	"github.com/ASingh442/sikh-historical-chain/pkgs/session"
	"github.com/ASingh442/sikh-historical-chain/pkgs/submission"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// App holds every long-lived component.
type App struct {
	Settings *config.Settings
	Contract *ledger.Contract
	Resolver *gateway.Resolver
	Uploader submission.Uploader // nil when no pinning backend is usable
	Session  *session.Session
	Emitter  *events.Emitter
	Redis    redis.UniversalClient
	Node     *ipfs.Client
	Eth      *ethclient.Client
	ABI      abi.ABI

	closers []func() error
}

// New connects to the ledger and wires the session. Components whose
// configuration is missing are left nil rather than failing, except the
// ledger itself.
func New(ctx context.Context, s *config.Settings) (*App, error) {
	if err := s.ValidateRead(); err != nil {
		return nil, err
	}

	a := &App{Settings: s}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	s := a.Settings

	if addr := s.RedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		log.WithField("redis", addr).Info("Connected to Redis")
	}
	keys := shcredis.NewKeyBuilder(s.RedisKeyPrefix, s.ContractAddress)

	parsed, err := abiloader.Ledger(s.ContractABIPath)
	if err != nil {
		return err
	}
	a.ABI = parsed
	eth, err := ethclient.DialContext(ctx, s.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	a.Eth = eth
	a.closers = append(a.closers, func() error { eth.Close(); return nil })

	a.Contract, err = ledger.NewContract(eth, ledger.ContractConfig{
		Address:     s.Contract(),
		ABI:         parsed,
		PrivateKey:  s.SubmitterPrivateKey,
		ChainID:     s.ChainID,
		CallTimeout: s.ContractQueryTimeout,
	})
	if err != nil {
		return err
	}

	if s.IPFSAPIURL != "" {
		a.Node, err = ipfs.NewClient(s.IPFSAPIURL, s.UploadTimeout)
		if err != nil {
			return err
		}
	}

	var node gateway.NodeFetcher
	if s.IPFSNodeFallback && a.Node != nil {
		node = a.Node
	}
	a.Resolver = gateway.NewResolver(gateway.Config{
		Gateways: s.Gateways(),
		Timeout:  s.GatewayTimeout,
		Node:     node,
	})

	sessionID := uuid.NewString()
	econf := events.DefaultConfig()
	econf.SessionID = sessionID
	a.Emitter = events.NewEmitter(econf)
	if err := a.Emitter.Start(); err != nil {
		return err
	}
	a.closers = append(a.closers, a.Emitter.Stop)

	if s.PublishEvents && a.Redis != nil {
		publisher, err := events.NewPublisher(&events.PublisherConfig{
			RedisClient:   a.Redis,
			ChannelPrefix: keys.EventChannelPrefix(),
		})
		if err != nil {
			return err
		}
		detach, err := publisher.Attach(a.Emitter)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { detach(); return nil })
	}

	if a.Uploader, err = a.buildUploader(keys); err != nil {
		return err
	}

	store, err := a.buildPendingStore(keys)
	if err != nil {
		return err
	}
	engine := reconcile.NewEngine(store)

	var pipeline *submission.Pipeline
	if s.ReadOnly || (a.Uploader != nil && s.SubmitterPrivateKey != "") {
		pipeline = submission.NewPipeline(a.Uploader, a.Contract, engine, submission.Config{
			ReadOnly: s.ReadOnly,
			Emitter:  a.Emitter,
		})
	}

	a.Session, err = session.New(session.Config{
		ID:           sessionID,
		Loader:       ledger.NewReader(a.Contract, recordcache.New[ledger.Record](), s.ContractQueryTimeout),
		Engine:       engine,
		Pipeline:     pipeline,
		Capabilities: submission.NewCapabilities(a.Contract),
		Emitter:      a.Emitter,
	})
	return err
}

func (a *App) buildUploader(keys *shcredis.KeyBuilder) (submission.Uploader, error) {
	s := a.Settings
	if s.ReadOnly {
		return nil, nil
	}

	var pinner pinning.Pinner
	switch s.PinningBackend {
	case config.PinningRemote:
		if s.UploadEndpoint == "" {
			return nil, nil
		}
		return pinning.NewClient(s.UploadEndpoint, s.UploadTimeout), nil
	case config.PinningKubo:
		if a.Node == nil {
			return nil, nil
		}
		pinner = pinning.NewNodePinner(a.Node)
	default:
		if s.PinataJWT == "" {
			return nil, nil
		}
		p, err := pinning.NewPinataPinner(s.PinataJWT, s.PinataAPIURL, s.UploadTimeout)
		if err != nil {
			return nil, err
		}
		pinner = p
	}

	var dedup *deduplication.Deduplicator
	if s.DedupEnabled {
		var err error
		dedup, err = deduplication.NewDeduplicator(a.Redis, keys, s.DedupLocalCacheSize, s.DedupTTL)
		if err != nil {
			return nil, err
		}
	}

	return pinning.NewService(pinner, dedup, pinning.Config{
		Concurrency: s.UploadConcurrency,
		Emitter:     a.Emitter,
	}), nil
}

func (a *App) buildPendingStore(keys *shcredis.KeyBuilder) (pending.Store, error) {
	s := a.Settings

	account := ""
	if addr, err := s.SubmitterAddress(); err == nil {
		account = addr.Hex()
	}

	switch s.PendingStore {
	case config.PendingMemory:
		return pending.NewMemoryStore(), nil
	case config.PendingRedis:
		if a.Redis == nil {
			return nil, errors.New("pending store redis needs REDIS_HOST")
		}
		return pending.NewRedisStore(a.Redis, keys.PendingSubmission(account)), nil
	case config.PendingSQLite:
		store, err := pending.OpenSQLite(s.PendingPath, account)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return pending.NewFileStore(s.PendingPath)
	}
}

// Watch starts the ledger watch when LEDGER_WATCH is set. It returns nil
// when disabled.
func (a *App) Watch(ctx context.Context) (*eventmonitor.EventMonitor, error) {
	s := a.Settings
	if !s.LedgerWatch {
		return nil, nil
	}

	m, err := eventmonitor.NewEventMonitor(ctx, eventmonitor.Config{
		Source:          a.Eth,
		Reloader:        a.Session,
		ContractAddress: s.Contract(),
		ABI:             &a.ABI,
		StartBlock:      s.LedgerStartBlock,
		PollInterval:    s.LedgerPollInterval,
		Emitter:         a.Emitter,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { m.Stop(); return nil })
	return m, nil
}

// HealthChecks returns the admin health probes for the configured
// dependencies.
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"ledger": func(ctx context.Context) error {
			_, err := a.Contract.TotalRecords(ctx)
			return err
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.Node != nil {
		checks["ipfs"] = func(ctx context.Context) error {
			if !a.Node.IsAvailable(ctx) {
				return errors.New("ipfs node unreachable")
			}
			return nil
		}
	}
	return checks
}

// Close releases everything in reverse order of creation.
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
