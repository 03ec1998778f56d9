package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/metrics"
	"github.com/ASingh442/sikh-historical-chain/pkgs/recordcache"
	log "github.com/sirupsen/logrus"
)

// maxPrealloc bounds the up-front allocation for a load.
const maxPrealloc = 4096

// Source is the read side of the ledger contract.
type Source interface {
	TotalRecords(ctx context.Context) (uint64, error)
	GetRecord(ctx context.Context, id uint64) (RawRecord, error)
}

// ReadError means a full load could not complete. No partial result is
// returned alongside it.
type ReadError struct {
	Op  string
	ID  uint64
	Err error
}

func (e *ReadError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("unable to load ledger entries, try again: %s(%d): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("unable to load ledger entries, try again: %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Reader materializes the complete record set, reusing records already
// seen in this session.
type Reader struct {
	source      Source
	cache       *recordcache.Cache[Record]
	callTimeout time.Duration
}

// NewReader creates a reader. A nil cache gets a fresh one.
func NewReader(source Source, cache *recordcache.Cache[Record], callTimeout time.Duration) *Reader {
	if cache == nil {
		cache = recordcache.New[Record]()
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Reader{source: source, cache: cache, callTimeout: callTimeout}
}

// Cache exposes the session cache.
func (r *Reader) Cache() *recordcache.Cache[Record] {
	return r.cache
}

// LoadAll returns every record, newest first. Reads are sequential by
// ascending id; any failure aborts the whole load with a *ReadError.
// Returned records are copies and may be modified freely.
func (r *Reader) LoadAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	defer func() {
		metrics.LedgerLoadDuration.Observe(time.Since(start).Seconds())
	}()

	total, err := r.total(ctx)
	if err != nil {
		metrics.LedgerLoads.WithLabelValues("error").Inc()
		return nil, &ReadError{Op: "totalRecords", Err: err}
	}

	// total comes from the endpoint; grow instead of trusting it up front.
	records := make([]Record, 0, min(total, maxPrealloc))
	var hits, fetched int
	for id := uint64(1); id <= total; id++ {
		if err := ctx.Err(); err != nil {
			metrics.LedgerLoads.WithLabelValues("cancelled").Inc()
			return nil, &ReadError{Op: "getRecord", ID: id, Err: err}
		}

		rec, ok := r.cache.Get(id)
		if ok {
			hits++
			metrics.LedgerCacheHits.Inc()
		} else {
			raw, err := r.fetch(ctx, id)
			if err != nil {
				metrics.LedgerLoads.WithLabelValues("error").Inc()
				return nil, &ReadError{Op: "getRecord", ID: id, Err: err}
			}
			fetched++
			rec = Normalize(raw)
			if rec.ID == 0 {
				rec.ID = id
			}
			r.cache.Put(id, rec.Clone())
		}

		records = append(records, rec.Clone())
	}
	slices.Reverse(records)

	metrics.LedgerLoads.WithLabelValues("success").Inc()
	log.WithFields(log.Fields{
		"total":      total,
		"cache_hits": hits,
		"fetched":    fetched,
		"duration":   time.Since(start).String(),
	}).Debug("Loaded ledger")

	return records, nil
}

func (r *Reader) total(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.source.TotalRecords(ctx)
}

func (r *Reader) fetch(ctx context.Context, id uint64) (RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	metrics.LedgerRecordFetches.Inc()
	return r.source.GetRecord(ctx, id)
}
