package salesync

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errMissingBackend = errors.New("salesync: backend not configured")

	// ErrSuperseded reports that a load settled after a newer filter took
	// over; its results were discarded.
	ErrSuperseded = errors.New("salesync: load superseded by a newer filter")
)

// SlotErrors carries the per-call outcome of a load. A nil field means that
// slot populated successfully.
type SlotErrors struct {
	Products   error
	Categories error
	Stats      error
	Years      error
}

// First returns the first error among the slots, or nil.
func (s SlotErrors) First() error {
	for _, err := range []error{s.Products, s.Categories, s.Stats, s.Years} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Any reports whether any slot failed.
func (s SlotErrors) Any() bool { return s.First() != nil }

// Snapshot is the consistent view a load settles into. Failed slots keep
// their zero value and record the error; callers decide whether partial data
// is acceptable to render.
type Snapshot struct {
	Filter     Filter
	Generation uint64
	Products   []Product
	Categories []Category
	Stats      Stats
	Years      []int
	Errors     SlotErrors
}

// CoordinatorOptions configures a Coordinator. Backend is required; the rest
// default to no-ops.
type CoordinatorOptions struct {
	Backend  Backend
	Recorder Recorder
	Refresh  RefreshHook
}

// Coordinator launches the network calls a dashboard view needs, joins them,
// and exposes a single settled snapshot. Loads are tagged with a
// monotonically increasing generation; a stale load that settles after a
// newer one is discarded rather than applied.
type Coordinator struct {
	backend  Backend
	recorder Recorder
	refresh  RefreshHook

	mu          sync.Mutex
	generation  uint64
	outstanding int
	snapshot    Snapshot
}

// NewCoordinator builds a Coordinator with safe defaults.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		backend:  opts.Backend,
		recorder: normalizeRecorder(opts.Recorder),
		refresh:  normalizeRefreshHook(opts.Refresh),
	}
}

// Load fetches products, categories, stats, and available years concurrently
// and joins all four before settling: this is a join, not a race. The
// returned snapshot reflects exactly this invocation; when a newer load has
// started in the meantime the result is returned for inspection but not
// applied, and ErrSuperseded is reported.
func (c *Coordinator) Load(ctx context.Context, filter Filter) (Snapshot, error) {
	if c.backend == nil {
		return Snapshot{}, errMissingBackend
	}
	if filter.Year == 0 {
		filter.Year = time.Now().Year()
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.outstanding = 4
	c.mu.Unlock()

	type productsResult struct {
		products []Product
		err      error
	}
	type categoriesResult struct {
		categories []Category
		err        error
	}
	type statsResult struct {
		raw RawStats
		err error
	}
	type yearsResult struct {
		years []int
		err   error
	}

	productsCh := make(chan productsResult, 1)
	categoriesCh := make(chan categoriesResult, 1)
	statsCh := make(chan statsResult, 1)
	yearsCh := make(chan yearsResult, 1)

	go func() {
		products, err := c.backend.FetchProducts(ctx, filter.CategoryID)
		c.settleCall(gen)
		productsCh <- productsResult{products, err}
	}()
	go func() {
		categories, err := c.backend.FetchCategories(ctx)
		c.settleCall(gen)
		categoriesCh <- categoriesResult{categories, err}
	}()
	go func() {
		raw, err := c.backend.FetchStats(ctx, filter.Year, filter.CategoryID)
		c.settleCall(gen)
		statsCh <- statsResult{raw, err}
	}()
	go func() {
		years, err := c.backend.FetchYears(ctx)
		c.settleCall(gen)
		yearsCh <- yearsResult{years, err}
	}()

	products := <-productsCh
	categories := <-categoriesCh
	stats := <-statsCh
	years := <-yearsCh

	snap := Snapshot{
		Filter:     filter,
		Generation: gen,
		Products:   products.products,
		Categories: categories.categories,
		Years:      years.years,
		Errors: SlotErrors{
			Products:   products.err,
			Categories: categories.err,
			Stats:      stats.err,
			Years:      years.err,
		},
	}
	// Stats degrade to zeroed aggregates on failure so dashboards render
	// partial data instead of a blank screen.
	if stats.err != nil {
		snap.Stats = Aggregate(RawStats{}, filter)
	} else {
		snap.Stats = Aggregate(stats.raw, filter)
	}
	if len(snap.Years) == 0 {
		snap.Years = []int{filter.Year}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.recorder.Record(ctx, "salesync.load.superseded", map[string]any{
			"generation": gen,
		})
		return snap, ErrSuperseded
	}
	c.snapshot = snap
	c.mu.Unlock()

	c.recorder.Record(ctx, "salesync.load.settled", map[string]any{
		"generation": gen,
		"year":       filter.Year,
		"category":   filter.CategoryID,
		"partial":    snap.Errors.Any(),
	})
	_ = c.refresh.Refreshed(ctx, Event{
		Reason:     "snapshot",
		Generation: gen,
		Year:       filter.Year,
		CategoryID: filter.CategoryID,
	})
	return snap, nil
}

// settleCall marks one of the current generation's calls as finished. Calls
// belonging to superseded generations are ignored.
func (c *Coordinator) settleCall(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation && c.outstanding > 0 {
		c.outstanding--
	}
}

// Snapshot returns the last applied snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Loading reports whether any call of the current generation is outstanding.
func (c *Coordinator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding > 0
}

// Err returns the first error of the last applied snapshot, or nil.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Errors.First()
}
