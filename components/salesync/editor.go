package salesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EditState is the per-record lifecycle of an optimistic edit.
type EditState int

const (
	// EditClean means the displayed value equals the last confirmed server
	// value and no edits are pending.
	EditClean EditState = iota
	// EditEditing means staged field changes overlay the confirmed value but
	// nothing has been sent yet.
	EditEditing
	// EditSaving means a save is in flight; further saves for the record are
	// rejected until it settles.
	EditSaving
)

func (s EditState) String() string {
	switch s {
	case EditClean:
		return "clean"
	case EditEditing:
		return "editing"
	case EditSaving:
		return "saving"
	default:
		return "unknown"
	}
}

var (
	// ErrSaveInFlight rejects a save for a record that is already saving.
	// The caller gets the rejection synchronously; no network call is made.
	ErrSaveInFlight = errors.New("salesync: save already in flight for this record")

	// ErrUnknownRecord reports an id the editor has never been seeded with.
	ErrUnknownRecord = errors.New("salesync: unknown sale record")

	// ErrNothingStaged rejects a save with an empty edit buffer.
	ErrNothingStaged = errors.New("salesync: no staged edits for this record")
)

// editableFields are the sale fields the backend accepts in a PUT patch.
var editableFields = map[string]bool{
	"product_id":  true,
	"quantity":    true,
	"total_price": true,
	"date":        true,
}

type recordState struct {
	state     EditState
	confirmed Sale           // last server-confirmed representation
	pending   map[string]any // staged patch, nil when clean
	lastErr   error          // error of the most recent failed save
}

// EditorOptions configures an Editor. Backend is required.
type EditorOptions struct {
	Backend  Backend
	Recorder Recorder
	Refresh  RefreshHook
}

// Editor applies local field edits to sale records optimistically: staged
// values show immediately, a save sends the accumulated patch, and the
// confirmed value is whatever the server echoes back. A failed save rolls
// the record back to its last confirmed state without touching other rows.
type Editor struct {
	backend  Backend
	recorder Recorder
	refresh  RefreshHook

	mu      sync.Mutex
	records map[int]*recordState
}

// NewEditor builds an Editor with safe defaults.
func NewEditor(opts EditorOptions) *Editor {
	return &Editor{
		backend:  opts.Backend,
		recorder: normalizeRecorder(opts.Recorder),
		refresh:  normalizeRefreshHook(opts.Refresh),
		records:  make(map[int]*recordState),
	}
}

// Seed installs the server-confirmed sales for the current view, replacing
// any previous set. Records mid-save keep their state so an in-flight save
// can still settle.
func (e *Editor) Seed(sales []Sale) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(map[int]*recordState, len(sales))
	for _, sale := range sales {
		if prev, ok := e.records[sale.ID]; ok && prev.state == EditSaving {
			next[sale.ID] = prev
			continue
		}
		next[sale.ID] = &recordState{state: EditClean, confirmed: sale}
	}
	e.records = next
}

// Stage records a single field edit. The record moves to Editing; nothing is
// sent to the server. Staging is rejected while a save is in flight.
func (e *Editor) Stage(id int, field string, value any) error {
	if !editableFields[field] {
		return fmt.Errorf("salesync: field %q is not editable", field)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return ErrUnknownRecord
	}
	if rec.state == EditSaving {
		return ErrSaveInFlight
	}
	if rec.pending == nil {
		rec.pending = make(map[string]any)
	}
	rec.pending[field] = value
	rec.state = EditEditing
	rec.lastErr = nil
	return nil
}

// Display returns the record as the UI should show it: staged edits overlaid
// on the last confirmed server value.
func (e *Editor) Display(id int) (Sale, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return Sale{}, false
	}
	return overlay(rec.confirmed, rec.pending), true
}

// State returns the edit state for a record; unknown ids read as Clean.
func (e *Editor) State(id int) EditState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[id]; ok {
		return rec.state
	}
	return EditClean
}

// Err returns the record-scoped error of the most recent failed save, if any.
// Errors never leak across records.
func (e *Editor) Err(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[id]; ok {
		return rec.lastErr
	}
	return nil
}

// Discard drops staged edits without a network call; the displayed value
// reverts to the confirmed server state.
func (e *Editor) Discard(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok || rec.state == EditSaving {
		return
	}
	rec.pending = nil
	rec.state = EditClean
	rec.lastErr = nil
}

// Save sends the accumulated patch for the record in a single PUT. Only one
// save per record may be in flight; a concurrent attempt is rejected
// synchronously with ErrSaveInFlight. Distinct records save concurrently
// with no ordering guarantee.
//
// On success the server's echo becomes the confirmed value and the buffer
// entry is cleared, so server-side normalization shows through. On failure
// the buffer entry is discarded, the record reverts to its confirmed value,
// and the error is scoped to this record only.
func (e *Editor) Save(ctx context.Context, id int) (Sale, error) {
	if e.backend == nil {
		return Sale{}, errMissingBackend
	}

	e.mu.Lock()
	rec, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return Sale{}, ErrUnknownRecord
	}
	if rec.state == EditSaving {
		e.mu.Unlock()
		return Sale{}, ErrSaveInFlight
	}
	if len(rec.pending) == 0 {
		e.mu.Unlock()
		return Sale{}, ErrNothingStaged
	}
	patch := make(map[string]any, len(rec.pending))
	for field, value := range rec.pending {
		patch[field] = value
	}
	rec.state = EditSaving
	rec.lastErr = nil
	e.mu.Unlock()

	echo, err := e.backend.UpdateSale(ctx, id, patch)

	e.mu.Lock()
	// The record may have been re-seeded while saving; settle against
	// whatever entry now holds the id.
	rec, ok = e.records[id]
	if !ok {
		e.mu.Unlock()
		return echo, err
	}
	if err != nil {
		rec.pending = nil
		rec.state = EditClean
		rec.lastErr = err
		e.mu.Unlock()
		e.recorder.Record(ctx, "salesync.sale.rollback", map[string]any{
			"sale_id": id,
			"error":   err.Error(),
		})
		_ = e.refresh.Refreshed(ctx, Event{Reason: "rollback", SaleID: id})
		return Sale{}, err
	}
	rec.confirmed = echo
	rec.pending = nil
	rec.state = EditClean
	rec.lastErr = nil
	e.mu.Unlock()

	e.recorder.Record(ctx, "salesync.sale.saved", map[string]any{
		"sale_id": id,
	})
	_ = e.refresh.Refreshed(ctx, Event{Reason: "save", SaleID: id})
	return echo, nil
}

// overlay applies a staged patch on top of a confirmed sale.
func overlay(confirmed Sale, patch map[string]any) Sale {
	out := confirmed
	for field, value := range patch {
		switch field {
		case "product_id":
			if v, ok := intValue(value); ok {
				out.ProductID = v
			}
		case "quantity":
			if v, ok := intValue(value); ok {
				out.Quantity = v
			}
		case "total_price":
			if v, ok := decimalValue(value); ok {
				out.TotalPrice = v
			}
		case "date":
			out.Date = stringValue(value, out.Date)
		}
	}
	return out
}
