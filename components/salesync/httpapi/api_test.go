package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	salesync "github.com/smartmart/salesync/components/salesync"
	"github.com/smartmart/salesync/components/salesync/commands"
)

type stubCommander[T any] struct {
	last  T
	calls int
	err   error
}

func (s *stubCommander[T]) Execute(_ context.Context, msg T) error {
	s.last = msg
	s.calls++
	return s.err
}

type stubSnapshots struct {
	snap salesync.Snapshot
}

func (s *stubSnapshots) Snapshot() salesync.Snapshot { return s.snap }

type stubTransfer struct {
	data []byte
	err  error
}

func (s *stubTransfer) ImportCSV(context.Context, salesync.ImportKind, string, io.Reader) (salesync.ImportReport, error) {
	return salesync.ImportReport{}, nil
}

func (s *stubTransfer) ExportCSV(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

func TestHandleRefresh(t *testing.T) {
	refresh := &stubCommander[commands.RefreshSnapshotInput]{}
	api := &Handlers{Refresh: refresh}
	buf, _ := json.Marshal(commands.RefreshSnapshotInput{Year: 2024})
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	api.HandleRefresh(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if refresh.last.Year != 2024 {
		t.Fatalf("expected year propagation, got %+v", refresh.last)
	}
}

func TestHandleSnapshotFlattensErrors(t *testing.T) {
	snap := salesync.Snapshot{
		Filter:     salesync.Filter{Year: 2024},
		Generation: 3,
		Stats:      salesync.Aggregate(salesync.RawStats{}, salesync.Filter{Year: 2024}),
		Years:      []int{2024},
		Errors:     salesync.SlotErrors{Stats: salesync.ServerFailure(500, "boom")},
	}
	api := &Handlers{Snapshots: &stubSnapshots{snap: snap}}
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	rec := httptest.NewRecorder()
	api.HandleSnapshot(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view struct {
		Generation uint64            `json:"generation"`
		Partial    bool              `json:"partial"`
		Errors     map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Generation != 3 || !view.Partial {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Errors["stats"] == "" {
		t.Fatalf("expected stats error in payload")
	}
}

func TestHandleSaveSaleMapsValidationStatus(t *testing.T) {
	save := &stubCommander[commands.SaveSaleInput]{
		err: salesync.ValidationFailure(422, "date", "invalid date"),
	}
	api := &Handlers{Save: save}
	buf, _ := json.Marshal(commands.SaveSaleInput{SaleID: 7, Fields: map[string]any{"date": "x"}})
	req := httptest.NewRequest(http.MethodPost, "/api/sales/save", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	api.HandleSaveSale(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleSaveSaleSuccess(t *testing.T) {
	save := &stubCommander[commands.SaveSaleInput]{}
	api := &Handlers{Save: save}
	buf, _ := json.Marshal(commands.SaveSaleInput{SaleID: 7, Fields: map[string]any{"quantity": 2}})
	req := httptest.NewRequest(http.MethodPost, "/api/sales/save", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	api.HandleSaveSale(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if save.calls != 1 {
		t.Fatalf("expected save to execute")
	}
}

func TestHandleImportParsesMultipart(t *testing.T) {
	importCmd := &stubCommander[commands.ImportCSVInput]{}
	api := &Handlers{Import: importCmd}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "sales.csv")
	part.Write([]byte("product_id,quantity,total_price,date\n"))
	writer.WriteField("type", "sales")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	api.HandleImport(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if importCmd.last.Kind != "sales" || importCmd.last.Filename != "sales.csv" {
		t.Fatalf("metadata not propagated: %+v", importCmd.last)
	}
	if len(importCmd.last.Data) == 0 {
		t.Fatalf("expected file contents")
	}
}

func TestHandleImportRequiresFile(t *testing.T) {
	api := &Handlers{Import: &stubCommander[commands.ImportCSVInput]{}}
	req := httptest.NewRequest(http.MethodPost, "/api/import", nil)
	rec := httptest.NewRecorder()
	api.HandleImport(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleExport(t *testing.T) {
	api := &Handlers{Transfer: &stubTransfer{data: []byte("id,name\n1,Keyboard\n")}}
	req := httptest.NewRequest(http.MethodGet, "/api/export?resource=products", nil)
	rec := httptest.NewRecorder()
	api.HandleExport(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("expected csv content type")
	}
	if rec.Body.String() != "id,name\n1,Keyboard\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandleExportRequiresResource(t *testing.T) {
	api := &Handlers{Transfer: &stubTransfer{}}
	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rec := httptest.NewRecorder()
	api.HandleExport(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
