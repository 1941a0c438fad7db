package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	gocommand "github.com/goliatone/go-command"

	salesync "github.com/smartmart/salesync/components/salesync"
	"github.com/smartmart/salesync/components/salesync/commands"
)

// SnapshotSource exposes the last settled snapshot for read endpoints.
type SnapshotSource interface {
	Snapshot() salesync.Snapshot
}

// Handlers exposes HTTP endpoints backed by shared commands.
type Handlers struct {
	Refresh   gocommand.Commander[commands.RefreshSnapshotInput]
	Save      gocommand.Commander[commands.SaveSaleInput]
	Import    gocommand.Commander[commands.ImportCSVInput]
	Snapshots SnapshotSource
	Transfer  salesync.Transfer
	Events    *salesync.BroadcastHook
}

// Register wires the handlers onto a mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/refresh", h.HandleRefresh)
	mux.HandleFunc("GET /api/snapshot", h.HandleSnapshot)
	mux.HandleFunc("POST /api/sales/save", h.HandleSaveSale)
	mux.HandleFunc("POST /api/import", h.HandleImport)
	mux.HandleFunc("GET /api/export", h.HandleExport)
	if h.Events != nil {
		mux.HandleFunc("GET /api/events", h.Events.ServeSSE)
		mux.HandleFunc("GET /api/events/ws", h.Events.ServeWebSocket)
	}
}

// HandleRefresh triggers a reload of the snapshot under the posted filter.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload commands.RefreshSnapshotInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Refresh.Execute(r.Context(), payload); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// snapshotView is the JSON shape of a snapshot; slot errors flatten to
// strings so failures survive serialization.
type snapshotView struct {
	Generation uint64              `json:"generation"`
	Year       int                 `json:"year"`
	CategoryID string              `json:"category_id,omitempty"`
	Products   []salesync.Product  `json:"products"`
	Categories []salesync.Category `json:"categories"`
	Stats      salesync.Stats      `json:"stats"`
	Years      []int               `json:"years"`
	Partial    bool                `json:"partial"`
	Errors     map[string]string   `json:"errors,omitempty"`
}

// HandleSnapshot serves the last applied snapshot as JSON.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshots.Snapshot()
	view := snapshotView{
		Generation: snap.Generation,
		Year:       snap.Filter.Year,
		CategoryID: snap.Filter.CategoryID,
		Products:   snap.Products,
		Categories: snap.Categories,
		Stats:      snap.Stats,
		Years:      snap.Years,
		Partial:    snap.Errors.Any(),
	}
	if snap.Errors.Any() {
		view.Errors = map[string]string{}
		for slot, err := range map[string]error{
			"products":   snap.Errors.Products,
			"categories": snap.Errors.Categories,
			"stats":      snap.Errors.Stats,
			"years":      snap.Errors.Years,
		} {
			if err != nil {
				view.Errors[slot] = err.Error()
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSaveSale stages and persists field edits for a single sale.
func (h *Handlers) HandleSaveSale(w http.ResponseWriter, r *http.Request) {
	var payload commands.SaveSaleInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Save.Execute(r.Context(), payload); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleImport accepts a multipart CSV upload with a "file" part and a
// "type" field naming the resource.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input := commands.ImportCSVInput{
		Kind:     r.FormValue("type"),
		Filename: header.Filename,
		Data:     data,
	}
	if err := h.Import.Execute(r.Context(), input); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleExport streams a resource's CSV export.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "missing resource parameter", http.StatusBadRequest)
		return
	}
	data, err := h.Transfer.ExportCSV(r.Context(), resource)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+resource+".csv")
	w.Write(data)
}

// statusFor maps tagged failures onto response codes. Validation rejections
// carry the server's message and a client-error status; transport failures
// surface as gateway errors.
func statusFor(err error) int {
	kind, ok := salesync.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case salesync.KindValidation:
		return http.StatusUnprocessableEntity
	case salesync.KindTimeout:
		return http.StatusGatewayTimeout
	case salesync.KindNetworkUnreachable, salesync.KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
