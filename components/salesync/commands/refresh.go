package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// RefreshSnapshotInput selects which filter the snapshot reloads under.
type RefreshSnapshotInput struct {
	Year       int    `json:"year"`
	CategoryID string `json:"category_id"`
}

type snapshotLoader interface {
	Load(ctx context.Context, filter salesync.Filter) (salesync.Snapshot, error)
}

// RefreshSnapshotCommand reloads the current view through the coordinator.
type RefreshSnapshotCommand struct {
	loader    snapshotLoader
	telemetry Telemetry
}

// NewRefreshSnapshotCommand creates the command.
func NewRefreshSnapshotCommand(loader snapshotLoader, telemetry Telemetry) *RefreshSnapshotCommand {
	return &RefreshSnapshotCommand{loader: loader, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RefreshSnapshotInput] = (*RefreshSnapshotCommand)(nil)

// Execute loads a fresh snapshot. A superseded load is not a failure: a newer
// filter already owns the view, so the stale result is dropped silently.
func (c *RefreshSnapshotCommand) Execute(ctx context.Context, msg RefreshSnapshotInput) error {
	if c.loader == nil {
		return errors.New("refresh command requires a loader")
	}
	snap, err := c.loader.Load(ctx, salesync.Filter{Year: msg.Year, CategoryID: msg.CategoryID})
	if err != nil {
		if errors.Is(err, salesync.ErrSuperseded) {
			return nil
		}
		return err
	}
	c.telemetry.Record(ctx, "salesync.snapshot.refresh", map[string]any{
		"generation": snap.Generation,
		"year":       snap.Filter.Year,
		"category":   snap.Filter.CategoryID,
		"partial":    snap.Errors.Any(),
	})
	return nil
}
