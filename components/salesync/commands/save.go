package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// SaveSaleInput carries the field edits to stage and persist for one sale.
type SaveSaleInput struct {
	SaleID int            `json:"sale_id"`
	Fields map[string]any `json:"fields"`
}

type saleEditor interface {
	Stage(id int, field string, value any) error
	Save(ctx context.Context, id int) (salesync.Sale, error)
}

// SaveSaleCommand stages the provided fields and sends the patch in one PUT.
type SaveSaleCommand struct {
	editor    saleEditor
	telemetry Telemetry
}

// NewSaveSaleCommand creates the command.
func NewSaveSaleCommand(editor saleEditor, telemetry Telemetry) *SaveSaleCommand {
	return &SaveSaleCommand{editor: editor, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SaveSaleInput] = (*SaveSaleCommand)(nil)

// Execute stages each field and saves. Staging failures abort before any
// network call so a rejected field never produces a partial patch.
func (c *SaveSaleCommand) Execute(ctx context.Context, msg SaveSaleInput) error {
	if c.editor == nil {
		return errors.New("save command requires an editor")
	}
	if msg.SaleID == 0 {
		return errors.New("save command requires a sale id")
	}
	if len(msg.Fields) == 0 {
		return errors.New("save command requires at least one field")
	}
	for field, value := range msg.Fields {
		if err := c.editor.Stage(msg.SaleID, field, value); err != nil {
			return err
		}
	}
	if _, err := c.editor.Save(ctx, msg.SaleID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "salesync.sale.save", map[string]any{
		"sale_id": msg.SaleID,
		"fields":  len(msg.Fields),
	})
	return nil
}
