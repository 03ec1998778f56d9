package pinning

import (
	"context"
	"errors"
	"fmt"

	"github.com/ASingh442/sikh-historical-chain/pkgs/cidutil"
	"github.com/ASingh442/sikh-historical-chain/pkgs/deduplication"
	"github.com/ASingh442/sikh-historical-chain/pkgs/events"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxFiles is the most files accepted in one upload.
const MaxFiles = 5

var (
	ErrReadOnly     = errors.New("uploads are disabled in read-only mode")
	ErrNoFiles      = errors.New("no files provided")
	ErrTooManyFiles = fmt.Errorf("max %d files per upload", MaxFiles)
)

// Pinner stores one file with a pinning backend and returns its CID.
type Pinner interface {
	Name() string
	Pin(ctx context.Context, name string, data []byte) (string, error)
}

// File is one file to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload describes a pinned file.
type Upload struct {
	CID  string `json:"cid"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// PinError wraps a backend rejection for one file.
type PinError struct {
	Name    string
	Backend string
	Err     error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("%s upload of %q failed: %v", e.Backend, e.Name, e.Err)
}

func (e *PinError) Unwrap() error {
	return e.Err
}

// Config configures a Service.
type Config struct {
	ReadOnly    bool
	Concurrency int
	Emitter     *events.Emitter
}

// Service pins batches of files. Byte-identical files within a batch are
// uploaded once; with a deduplicator, bytes pinned by an earlier batch are
// not uploaded again at all.
type Service struct {
	pinner      Pinner
	dedup       *deduplication.Deduplicator
	readOnly    bool
	concurrency int
	emitter     *events.Emitter
}

// NewService creates an upload service. dedup may be nil.
func NewService(pinner Pinner, dedup *deduplication.Deduplicator, cfg Config) *Service {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = MaxFiles
	}
	return &Service{
		pinner:      pinner,
		dedup:       dedup,
		readOnly:    cfg.ReadOnly,
		concurrency: concurrency,
		emitter:     cfg.Emitter,
	}
}

// Upload pins files concurrently and returns one Upload per distinct file,
// in input order. Any backend failure fails the whole batch.
func (s *Service) Upload(ctx context.Context, files []File) ([]Upload, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > MaxFiles {
		return nil, ErrTooManyFiles
	}

	type job struct {
		file File
		hash string
	}

	seen := make(map[string]struct{}, len(files))
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		hash, err := cidutil.ContentHash(f.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %q: %w", f.Name, err)
		}
		if _, dup := seen[hash]; dup {
			metrics.DedupHits.WithLabelValues("batch").Inc()
			continue
		}
		seen[hash] = struct{}{}
		jobs = append(jobs, job{file: f, hash: hash})
	}

	results := make([]Upload, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, j := range jobs {
		g.Go(func() error {
			cid, deduped, err := s.pinOne(gctx, j.file, j.hash)
			if err != nil {
				metrics.Uploads.WithLabelValues(s.pinner.Name(), "error").Inc()
				return &PinError{Name: j.file.Name, Backend: s.pinner.Name(), Err: err}
			}

			outcome := "pinned"
			if deduped {
				outcome = "deduplicated"
			}
			metrics.Uploads.WithLabelValues(s.pinner.Name(), outcome).Inc()

			results[i] = Upload{
				CID:  cid,
				Name: j.file.Name,
				Size: int64(len(j.file.Data)),
				Type: j.file.ContentType,
			}
			s.announce(results[i], deduped)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) pinOne(ctx context.Context, f File, hash string) (string, bool, error) {
	if s.dedup != nil {
		cid, found, err := s.dedup.Lookup(ctx, hash)
		if err != nil {
			log.WithError(err).WithField("file", f.Name).Warn("Dedup lookup failed, pinning anyway")
		} else if found {
			return cid, true, nil
		}
	}

	cid, err := s.pinner.Pin(ctx, f.Name, f.Data)
	if err != nil {
		return "", false, err
	}

	if s.dedup != nil {
		remembered, err := s.dedup.Remember(ctx, hash, cid)
		if err != nil {
			log.WithError(err).WithField("cid", cid).Warn("Failed to record pinned content")
		} else {
			cid = remembered
		}
	}

	log.WithFields(log.Fields{
		"file":    f.Name,
		"cid":     cid,
		"size":    len(f.Data),
		"backend": s.pinner.Name(),
	}).Info("Pinned file")

	return cid, false, nil
}

func (s *Service) announce(u Upload, deduped bool) {
	if s.emitter == nil {
		return
	}
	err := s.emitter.EmitContentPinned("pinning", &events.PinEventPayload{
		CID:     u.CID,
		Name:    u.Name,
		Size:    u.Size,
		Backend: s.pinner.Name(),
		Deduped: deduped,
	})
	if err != nil {
		log.WithError(err).Debug("Pin event not emitted")
	}
}
