package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	salesync "github.com/smartmart/salesync/components/salesync"
)

type stubLoader struct {
	calls  int
	filter salesync.Filter
	err    error
}

func (s *stubLoader) Load(_ context.Context, filter salesync.Filter) (salesync.Snapshot, error) {
	s.calls++
	s.filter = filter
	return salesync.Snapshot{Filter: filter, Generation: 1}, s.err
}

type stubEditor struct {
	staged   map[string]any
	saves    int
	stageErr error
	saveErr  error
}

func (s *stubEditor) Stage(_ int, field string, value any) error {
	if s.stageErr != nil {
		return s.stageErr
	}
	if s.staged == nil {
		s.staged = map[string]any{}
	}
	s.staged[field] = value
	return nil
}

func (s *stubEditor) Save(context.Context, int) (salesync.Sale, error) {
	s.saves++
	return salesync.Sale{}, s.saveErr
}

type stubTransfer struct {
	kind     salesync.ImportKind
	consumed []byte
}

func (s *stubTransfer) ImportCSV(_ context.Context, kind salesync.ImportKind, _ string, file io.Reader) (salesync.ImportReport, error) {
	s.kind = kind
	s.consumed, _ = io.ReadAll(file)
	return salesync.ImportReport{Message: "ok"}, nil
}

func (s *stubTransfer) ExportCSV(context.Context, string) ([]byte, error) { return nil, nil }

type stubTelemetry struct {
	events []string
}

func (s *stubTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	s.events = append(s.events, event)
}

func TestRefreshSnapshotCommand(t *testing.T) {
	loader := &stubLoader{}
	telemetry := &stubTelemetry{}
	cmd := NewRefreshSnapshotCommand(loader, telemetry)
	if err := cmd.Execute(context.Background(), RefreshSnapshotInput{Year: 2024, CategoryID: "3"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected load call")
	}
	if loader.filter.Year != 2024 || loader.filter.CategoryID != "3" {
		t.Fatalf("filter not propagated: %+v", loader.filter)
	}
	if len(telemetry.events) == 0 {
		t.Fatalf("expected telemetry event")
	}
}

func TestRefreshSnapshotCommandSwallowsSuperseded(t *testing.T) {
	loader := &stubLoader{err: salesync.ErrSuperseded}
	cmd := NewRefreshSnapshotCommand(loader, nil)
	if err := cmd.Execute(context.Background(), RefreshSnapshotInput{Year: 2024}); err != nil {
		t.Fatalf("superseded load is not a command failure, got %v", err)
	}
}

func TestRefreshSnapshotCommandPropagatesFailure(t *testing.T) {
	loader := &stubLoader{err: errors.New("backend down")}
	cmd := NewRefreshSnapshotCommand(loader, nil)
	if err := cmd.Execute(context.Background(), RefreshSnapshotInput{Year: 2024}); err == nil {
		t.Fatalf("expected failure to propagate")
	}
}

func TestSaveSaleCommand(t *testing.T) {
	editor := &stubEditor{}
	cmd := NewSaveSaleCommand(editor, nil)
	err := cmd.Execute(context.Background(), SaveSaleInput{
		SaleID: 7,
		Fields: map[string]any{"quantity": 5, "date": "2024-03-05"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(editor.staged) != 2 {
		t.Fatalf("expected 2 staged fields, got %d", len(editor.staged))
	}
	if editor.saves != 1 {
		t.Fatalf("expected one save, got %d", editor.saves)
	}
}

func TestSaveSaleCommandAbortsOnStageFailure(t *testing.T) {
	editor := &stubEditor{stageErr: errors.New("field rejected")}
	cmd := NewSaveSaleCommand(editor, nil)
	err := cmd.Execute(context.Background(), SaveSaleInput{
		SaleID: 7,
		Fields: map[string]any{"price": 10},
	})
	if err == nil {
		t.Fatalf("expected staging failure to abort")
	}
	if editor.saves != 0 {
		t.Fatalf("save must not run after a staging failure")
	}
}

func TestSaveSaleCommandRequiresInput(t *testing.T) {
	cmd := NewSaveSaleCommand(&stubEditor{}, nil)
	if err := cmd.Execute(context.Background(), SaveSaleInput{Fields: map[string]any{"quantity": 1}}); err == nil {
		t.Fatalf("expected missing sale id rejection")
	}
	if err := cmd.Execute(context.Background(), SaveSaleInput{SaleID: 7}); err == nil {
		t.Fatalf("expected empty fields rejection")
	}
}

func TestImportCSVCommand(t *testing.T) {
	transfer := &stubTransfer{}
	hook := salesync.NewBroadcastHook()
	events, cancel := hook.Subscribe()
	defer cancel()

	cmd := NewImportCSVCommand(transfer, hook, nil)
	csv := "product_id,quantity,total_price,date\n1,2,20,2024-01-01\n"
	err := cmd.Execute(context.Background(), ImportCSVInput{
		Kind:     "sales",
		Filename: "sales.csv",
		Data:     []byte(csv),
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if transfer.kind != salesync.ImportSales {
		t.Fatalf("expected sales import, got %s", transfer.kind)
	}
	select {
	case event := <-events:
		if event.Reason != "import" {
			t.Fatalf("unexpected event %+v", event)
		}
	default:
		t.Fatalf("expected an import event")
	}
}

func TestImportCSVCommandRejectsUnknownKind(t *testing.T) {
	cmd := NewImportCSVCommand(&stubTransfer{}, nil, nil)
	err := cmd.Execute(context.Background(), ImportCSVInput{Kind: "inventory", Data: []byte("a,b\n")})
	if err == nil {
		t.Fatalf("expected unknown kind rejection")
	}
}
