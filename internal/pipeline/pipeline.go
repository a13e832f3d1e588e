package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryan4259/r2-image-compressor/internal/naming"
	"github.com/ryan4259/r2-image-compressor/internal/transcode"
)

const webpContentType = "image/webp"

// ObjectStore is the narrow storage capability the pipeline depends on.
// Retry and backoff live behind this interface, not here.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// OrphanSink receives the key of a derivative that was persisted before a
// later stage failed. Wiring one is optional; without it the orphaned object
// simply stays in the bucket, which is the documented partial-write outcome.
type OrphanSink interface {
	EnqueueOrphan(ctx context.Context, key string) error
}

// Upload is one inbound request, handed over by the boundary layer after
// transport-level checks passed. Consumed exactly once.
type Upload struct {
	OriginalName string
	ContentType  string
	Data         []byte
	OwnerID      string
}

// Result reports the two persisted derivative keys plus the dimensions and
// size of the full rendition for bookkeeping.
type Result struct {
	FullKey  string
	ThumbKey string
	Width    int
	Height   int
	Bytes    int64
}

// Pipeline turns raw upload bytes into two stored WebP derivatives. Safe for
// concurrent use; each Process call works on private buffers only.
type Pipeline struct {
	store    ObjectStore
	orphans  OrphanSink
	maxBytes int64
	full     transcode.Profile
	thumb    transcode.Profile
	now      func() time.Time
}

type Option func(*Pipeline)

// WithMaxUploadBytes overrides the validation size cap.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) { p.maxBytes = n }
}

// WithOrphanSink enables cleanup scheduling for partially written uploads.
func WithOrphanSink(s OrphanSink) Option {
	return func(p *Pipeline) { p.orphans = s }
}

// WithClock fixes the timestamp source used for key derivation.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(store ObjectStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		maxBytes: DefaultMaxUploadBytes,
		full:     transcode.Full,
		thumb:    transcode.Thumbnail,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs validation, key derivation, both transcodes and both puts.
// The two transcodes run concurrently; the puts run full-then-thumbnail so a
// thumbnail-side failure can only ever strand the full object. That stranded
// object is reported through the optional orphan sink, never rolled back
// here: the two puts are deliberately not transactional.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*Result, error) {
	if err := Validate(up.ContentType, up.Data, p.maxBytes); err != nil {
		return nil, &StageError{Stage: StageValidation, Err: err}
	}

	keys := naming.Derive(up.OriginalName, p.now(), up.OwnerID)

	var full, thumb *transcode.Result
	var g errgroup.Group
	g.Go(func() error {
		r, err := transcode.Transcode(up.Data, p.full)
		if err != nil {
			return &StageError{Stage: StageTranscodeFull, Err: err}
		}
		full = r
		return nil
	})
	g.Go(func() error {
		r, err := transcode.Transcode(up.Data, p.thumb)
		if err != nil {
			return &StageError{Stage: StageTranscodeThumb, Err: err}
		}
		thumb = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.store.Put(ctx, keys.FullKey, full.Data, webpContentType); err != nil {
		return nil, &StageError{Stage: StageStoreFull, Err: err}
	}
	if err := p.store.Put(ctx, keys.ThumbKey, thumb.Data, webpContentType); err != nil {
		if p.orphans != nil {
			// Best effort: the sink owns its own error reporting, and the
			// caller needs the store failure, not the enqueue result.
			_ = p.orphans.EnqueueOrphan(ctx, keys.FullKey)
		}
		return nil, &StageError{Stage: StageStoreThumb, Err: err}
	}

	return &Result{
		FullKey:  keys.FullKey,
		ThumbKey: keys.ThumbKey,
		Width:    full.Width,
		Height:   full.Height,
		Bytes:    int64(len(full.Data)),
	}, nil
}
