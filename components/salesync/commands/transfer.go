package commands

import (
	"bytes"
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// ImportCSVInput carries a CSV payload bound for the bulk import endpoint.
type ImportCSVInput struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// ImportCSVCommand validates the header locally and streams the file to the
// backend. Cached views are stale after a successful import, so the command
// fires a refresh event for subscribed transports.
type ImportCSVCommand struct {
	transfer  salesync.Transfer
	refresh   salesync.RefreshHook
	telemetry Telemetry
}

// NewImportCSVCommand creates the command. refresh may be nil.
func NewImportCSVCommand(transfer salesync.Transfer, refresh salesync.RefreshHook, telemetry Telemetry) *ImportCSVCommand {
	if refresh == nil {
		refresh = noopRefresh{}
	}
	return &ImportCSVCommand{
		transfer:  transfer,
		refresh:   refresh,
		telemetry: normalizeTelemetry(telemetry),
	}
}

type noopRefresh struct{}

func (noopRefresh) Refreshed(context.Context, salesync.Event) error { return nil }

var _ gocommand.Commander[ImportCSVInput] = (*ImportCSVCommand)(nil)

// Execute imports the CSV payload.
func (c *ImportCSVCommand) Execute(ctx context.Context, msg ImportCSVInput) error {
	if c.transfer == nil {
		return errors.New("import command requires a transfer client")
	}
	kind, err := salesync.ParseImportKind(msg.Kind)
	if err != nil {
		return err
	}
	report, err := salesync.Import(ctx, c.transfer, kind, msg.Filename, bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "salesync.import.done", map[string]any{
		"kind":     string(kind),
		"filename": msg.Filename,
		"message":  report.Message,
		"warnings": len(report.Warnings),
	})
	_ = c.refresh.Refreshed(ctx, salesync.Event{Reason: "import"})
	return nil
}
