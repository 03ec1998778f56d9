package submission

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ASingh442/sikh-historical-chain/pkgs/events"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pending"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

var eventDatePattern = regexp.MustCompile(`^\d{2}/\d{2}/(\d{2}|\d{4})$`)

// Metadata is the user-entered part of a record.
type Metadata struct {
	Title       string
	Description string
	EventDate   string // dd/mm/yy or dd/mm/yyyy
	Contributor string // Human attribution; empty means Anonymous
}

// Validate checks the required fields.
func (m Metadata) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(m.Title) == "" {
		verr.add("title", "title is required")
	}
	if strings.TrimSpace(m.Description) == "" {
		verr.add("description", "description is required")
	}
	switch date := strings.TrimSpace(m.EventDate); {
	case date == "":
		verr.add("dateOfEvent", "date is required")
	case !eventDatePattern.MatchString(date):
		verr.add("dateOfEvent", "date must be in dd/mm/yy or dd/mm/yyyy format (e.g., 15/04/1469)")
	}
	return verr.orNil()
}

// Uploader pins a batch of files.
type Uploader interface {
	Upload(ctx context.Context, files []pinning.File) ([]pinning.Upload, error)
}

// ChainWriter submits a record transaction.
type ChainWriter interface {
	SubmitRecord(ctx context.Context, title, description, source, contentHash string) (common.Hash, error)
}

// PendingRecorder stores the most recent unmatched submission.
type PendingRecorder interface {
	Remember(ctx context.Context, s pending.Submission) error
}

// Config configures a Pipeline.
type Config struct {
	ReadOnly     bool
	WriteTimeout time.Duration
	Emitter      *events.Emitter
	Now          func() time.Time
}

// Pipeline turns staged files plus metadata into one ledger transaction.
type Pipeline struct {
	uploader     Uploader
	chain        ChainWriter
	recorder     PendingRecorder
	readOnly     bool
	writeTimeout time.Duration
	emitter      *events.Emitter
	now          func() time.Time
}

// NewPipeline wires the upload, chain and pending-slot collaborators.
func NewPipeline(uploader Uploader, chain ChainWriter, recorder PendingRecorder, cfg Config) *Pipeline {
	p := &Pipeline{
		uploader:     uploader,
		chain:        chain,
		recorder:     recorder,
		readOnly:     cfg.ReadOnly,
		writeTimeout: cfg.WriteTimeout,
		emitter:      cfg.Emitter,
		now:          cfg.Now,
	}
	if p.writeTimeout <= 0 {
		p.writeTimeout = 60 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ReadOnly reports whether writes are disabled.
func (p *Pipeline) ReadOnly() bool {
	return p.readOnly
}

// Submit uploads the batch, writes the record and remembers the resulting
// transaction hash for reconciliation. It returns before the transaction is
// confirmed. batch may be nil or empty for a metadata-only record.
func (p *Pipeline) Submit(ctx context.Context, batch *UploadBatch, meta Metadata) (*pending.Submission, error) {
	if p.readOnly {
		metrics.Submissions.WithLabelValues("read_only").Inc()
		return nil, ErrWriteDisabled
	}
	if err := meta.Validate(); err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var contentHash string
	if batch.Len() > 0 {
		uploads, err := p.uploader.Upload(ctx, batch.pinningFiles())
		if err != nil {
			metrics.Submissions.WithLabelValues("upload_error").Inc()
			p.announceFailure(meta, batch.Len(), err)
			return nil, &UploadError{Err: err}
		}
		cids, err := pinnedCIDs(uploads, batch.Len())
		if err != nil {
			metrics.Submissions.WithLabelValues("upload_error").Inc()
			p.announceFailure(meta, batch.Len(), err)
			return nil, &UploadError{Err: err}
		}
		contentHash = contentref.JoinCanonical(cids)
	}

	payload, err := ledger.EncodeDescription(meta.Description, strings.TrimSpace(meta.EventDate))
	if err != nil {
		return nil, fmt.Errorf("failed to encode description: %w", err)
	}

	source := strings.TrimSpace(meta.Contributor)
	if source == "" {
		source = ledger.DefaultSource
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	txHash, err := p.chain.SubmitRecord(writeCtx, meta.Title, payload, source, contentHash)
	if err != nil {
		metrics.Submissions.WithLabelValues("chain_error").Inc()
		p.announceFailure(meta, batch.Len(), err)
		return nil, &ChainWriteError{Err: err}
	}

	sub := pending.Submission{TxHash: txHash.Hex(), SubmittedAt: p.now().UTC()}
	if err := p.recorder.Remember(ctx, sub); err != nil {
		// The transaction is out; only the link back to it is lost.
		log.WithError(err).WithField("tx_hash", sub.TxHash).Error("Failed to persist pending submission")
	}

	metrics.Submissions.WithLabelValues("success").Inc()
	log.WithFields(log.Fields{
		"tx_hash":      sub.TxHash,
		"title":        meta.Title,
		"files":        batch.Len(),
		"content_hash": contentHash,
	}).Info("Record submitted")

	if p.emitter != nil {
		err := p.emitter.EmitRecordSubmitted("submission", &events.SubmissionEventPayload{
			TxHash:      sub.TxHash,
			Title:       meta.Title,
			ContentHash: contentHash,
			FileCount:   batch.Len(),
			SubmittedAt: sub.SubmittedAt.Unix(),
		})
		if err != nil {
			log.WithError(err).Debug("Submission event not emitted")
		}
	}

	return &sub, nil
}

func (p *Pipeline) announceFailure(meta Metadata, files int, cause error) {
	if p.emitter == nil {
		return
	}
	_ = p.emitter.EmitSubmissionFailed("submission", &events.SubmissionEventPayload{
		Title:     meta.Title,
		FileCount: files,
		Reason:    cause.Error(),
	})
}

// pinnedCIDs requires exactly one parsable identifier per staged file so a
// partial pin set never reaches the chain.
func pinnedCIDs(uploads []pinning.Upload, want int) ([]string, error) {
	if len(uploads) != want {
		return nil, fmt.Errorf("pinning returned %d uploads for %d files", len(uploads), want)
	}
	cids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		if _, ok := contentref.Parse(u.CID); !ok {
			return nil, fmt.Errorf("pinning returned unusable identifier %q for %s", u.CID, u.Name)
		}
		cids = append(cids, u.CID)
	}
	return cids, nil
}
