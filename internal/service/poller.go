package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// ErrStaleResponse is returned when a detail response arrives for a view
// that was closed or switched while the request was in flight.
var ErrStaleResponse = errors.New("batch view changed while loading")

// BatchReader is the read side of the pipeline backend.
type BatchReader interface {
	ListBatches(ctx context.Context) ([]model.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*model.BatchDetail, error)
}

// SnapshotPublisher receives every snapshot the poller applies.
type SnapshotPublisher interface {
	PublishBatches(batches []model.Batch)
	PublishBatch(detail *model.BatchDetail)
	PublishClosed(batchID string)
}

type noopPublisher struct{}

func (noopPublisher) PublishBatches([]model.Batch)     {}
func (noopPublisher) PublishBatch(*model.BatchDetail) {}
func (noopPublisher) PublishClosed(string)            {}

// ListSnapshot is the last applied batch list.
type ListSnapshot struct {
	Batches   []model.Batch `json:"batches"`
	FetchedAt time.Time     `json:"fetchedAt"`
	LastError string        `json:"lastError,omitempty"`
}

// DetailSnapshot is the open batch view.
type DetailSnapshot struct {
	BatchID   string             `json:"batchId"`
	Detail    *model.BatchDetail `json:"detail"`
	FetchedAt time.Time          `json:"fetchedAt"`
	LastError string             `json:"lastError,omitempty"`
}

// Poller keeps the batch list and the open batch detail in sync with the
// backend. Each successful fetch replaces the held snapshot wholesale; a
// failed fetch keeps the previous one.
type Poller struct {
	api       BatchReader
	decisions *DecisionStore
	clock     Clock
	interval  time.Duration
	publisher SnapshotPublisher
	log       zerolog.Logger

	// publishMu is taken before mu. It keeps applying a snapshot and
	// publishing it one step, so a close is never followed by a frame for
	// the view it closed.
	publishMu sync.Mutex

	mu      sync.RWMutex
	baseCtx context.Context
	list    ListSnapshot

	// open detail view, guarded by mu
	selected     string
	generation   uint64
	detail       DetailSnapshot
	cancelDetail context.CancelFunc
	detailTicker Ticker
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithClock replaces the ticker source.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPublisher attaches a snapshot subscriber.
func WithPublisher(pub SnapshotPublisher) PollerOption {
	return func(p *Poller) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func NewPoller(api BatchReader, decisions *DecisionStore, interval time.Duration, log zerolog.Logger, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	p := &Poller{
		api:       api,
		decisions: decisions,
		clock:     RealClock(),
		interval:  interval,
		publisher: noopPublisher{},
		log:       log.With().Str("component", "poller").Logger(),
		baseCtx:   context.Background(),
		list:      ListSnapshot{Batches: []model.Batch{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start fetches the list once and then refreshes it every interval until
// ctx is done. Detail loops also stop with ctx.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.baseCtx = ctx
	p.mu.Unlock()

	ticker := p.clock.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		p.RefreshList(ctx)
		for {
			select {
			case <-ctx.Done():
				p.CloseBatch()
				return
			case <-ticker.C():
				p.RefreshList(ctx)
			}
		}
	}()
}

// RefreshList fetches and applies the batch list.
func (p *Poller) RefreshList(ctx context.Context) ([]model.Batch, error) {
	batches, err := p.api.ListBatches(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("batch list refresh failed, keeping previous snapshot")
		p.mu.Lock()
		p.list.LastError = err.Error()
		p.mu.Unlock()
		return nil, err
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	p.list = ListSnapshot{Batches: batches, FetchedAt: time.Now()}
	p.mu.Unlock()

	p.publisher.PublishBatches(batches)
	return batches, nil
}

// OpenBatch makes batchID the open detail view, resets the decision map for
// it and starts the detail loop. The first fetch happens immediately; if it
// fails the view stays open and the loop keeps retrying.
func (p *Poller) OpenBatch(ctx context.Context, batchID string) (*model.BatchDetail, error) {
	p.publishMu.Lock()
	p.mu.Lock()
	if p.selected == batchID {
		gen := p.generation
		p.mu.Unlock()
		p.publishMu.Unlock()
		return p.refreshDetail(ctx, batchID, gen)
	}

	previous := p.selected
	p.stopDetailLocked()
	p.selected = batchID
	p.generation++
	gen := p.generation
	p.detail = DetailSnapshot{BatchID: batchID}
	p.decisions.Reset(batchID)

	loopCtx, cancel := context.WithCancel(p.baseCtx)
	ticker := p.clock.NewTicker(p.interval)
	p.cancelDetail = cancel
	p.detailTicker = ticker
	p.mu.Unlock()

	if previous != "" {
		p.publisher.PublishClosed(previous)
	}
	p.publishMu.Unlock()

	p.log.Debug().Str("batchId", batchID).Msg("batch view opened")
	go p.detailLoop(loopCtx, ticker, batchID, gen)

	return p.refreshDetail(ctx, batchID, gen)
}

// CloseBatch closes the open detail view. No detail fetch is issued for it
// afterwards and responses already in flight are dropped.
func (p *Poller) CloseBatch() {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	closed := p.selected
	p.closeLocked()
	p.mu.Unlock()

	if closed != "" {
		p.log.Debug().Str("batchId", closed).Msg("batch view closed")
		p.publisher.PublishClosed(closed)
	}
}

// CloseIf closes the detail view only if batchID is still the open batch.
func (p *Poller) CloseIf(batchID string) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	if p.selected != batchID {
		p.mu.Unlock()
		return
	}
	p.closeLocked()
	p.mu.Unlock()

	p.publisher.PublishClosed(batchID)
}

func (p *Poller) closeLocked() {
	if p.selected == "" {
		return
	}
	p.stopDetailLocked()
	p.selected = ""
	p.generation++
	p.detail = DetailSnapshot{}
	p.decisions.Reset("")
}

func (p *Poller) stopDetailLocked() {
	if p.cancelDetail != nil {
		p.cancelDetail()
		p.cancelDetail = nil
	}
	if p.detailTicker != nil {
		p.detailTicker.Stop()
		p.detailTicker = nil
	}
}

// RefreshDetail fetches the open batch out of band from its timer.
func (p *Poller) RefreshDetail(ctx context.Context) (*model.BatchDetail, error) {
	p.mu.RLock()
	batchID, gen := p.selected, p.generation
	p.mu.RUnlock()

	if batchID == "" {
		return nil, ErrNoOpenBatch
	}
	return p.refreshDetail(ctx, batchID, gen)
}

// Refresh refreshes the open detail view if there is one, otherwise the list.
// It reports which one was refreshed.
func (p *Poller) Refresh(ctx context.Context) (string, error) {
	if p.SelectedBatch() != "" {
		_, err := p.RefreshDetail(ctx)
		if !errors.Is(err, ErrNoOpenBatch) {
			return "detail", err
		}
	}
	_, err := p.RefreshList(ctx)
	return "list", err
}

func (p *Poller) detailLoop(ctx context.Context, ticker Ticker, batchID string, gen uint64) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			_, _ = p.refreshDetail(p.fetchContext(), batchID, gen)
		}
	}
}

// fetchContext is used for timer fetches. It is not cancelled on close so
// in-flight requests finish and their result is discarded.
func (p *Poller) fetchContext() context.Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseCtx
}

func (p *Poller) isCurrent(batchID string, gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected == batchID && p.generation == gen
}

func (p *Poller) refreshDetail(ctx context.Context, batchID string, gen uint64) (*model.BatchDetail, error) {
	if !p.isCurrent(batchID, gen) {
		return nil, ErrStaleResponse
	}

	detail, err := p.api.GetBatch(ctx, batchID)
	if err != nil {
		p.log.Warn().Err(err).Str("batchId", batchID).Msg("batch detail refresh failed, keeping previous snapshot")
		p.mu.Lock()
		if p.selected == batchID && p.generation == gen {
			p.detail.LastError = err.Error()
		}
		p.mu.Unlock()
		return nil, err
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	if p.selected != batchID || p.generation != gen {
		p.mu.Unlock()
		p.log.Debug().Str("batchId", batchID).Msg("dropping detail response for inactive view")
		return nil, ErrStaleResponse
	}
	p.detail = DetailSnapshot{BatchID: batchID, Detail: detail, FetchedAt: time.Now()}
	p.mu.Unlock()

	p.publisher.PublishBatch(detail)
	return detail, nil
}

// SelectedBatch returns the open batch id, or "".
func (p *Poller) SelectedBatch() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected
}

// List returns the last applied batch list.
func (p *Poller) List() ListSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.list
}

// Detail returns the open view. ok is false when no batch is open.
func (p *Poller) Detail() (DetailSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.selected == "" {
		return DetailSnapshot{}, false
	}
	return p.detail, true
}

// Batch looks up a batch in the current list snapshot.
func (p *Poller) Batch(batchID string) (model.Batch, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, b := range p.list.Batches {
		if b.BatchID == batchID {
			return b, true
		}
	}
	return model.Batch{}, false
}
