package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"coachcal/internal/application/orchestrators"
	"coachcal/internal/application/projections"
	"coachcal/internal/domain/calendar"
)

// listResponse is the body of every endpoint that returns several items.
type listResponse struct {
	Items []calendar.Item `json:"items"`
}

func newListResponse(items []calendar.Item) listResponse {
	if items == nil {
		items = []calendar.Item{}
	}
	return listResponse{Items: items}
}

// handleListItems handles GET /api/clients/{clientID}/items?start=&end=
func handleListItems(w http.ResponseWriter, r *http.Request) {
	q := calendar.Query{
		ClientID: r.PathValue("clientID"),
		Range:    calendar.Range{Start: r.URL.Query().Get("start"), End: r.URL.Query().Get("end")},
	}
	items, err := projections.QueryListItems(r.Context(), q, listDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

// handleCreateItem handles POST /api/clients/{clientID}/items.
// The body is an item; its id is ignored and replaced by a server id.
func handleCreateItem(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientID")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in calendar.Item
	if err := strictDecode(r, &in); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.ClientID != "" && in.ClientID != clientID {
		http.Error(w, "client_id does not match the URL", http.StatusBadRequest)
		return
	}

	it, err := orchestrators.ExecuteCreateItem(r.Context(), orchestrators.CreateItemInput{
		ClientID:      clientID,
		Type:          in.Type,
		Title:         in.Title,
		Content:       in.Content,
		ScheduledDate: in.ScheduledDate,
		Position:      in.Position,
		Status:        in.Status,
	}, itemDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// handleUpdateItem handles PATCH /api/items/{id}. Content in the patch is
// decoded against the stored item's type.
func handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	raw, err := calendar.DecodePatch(body)
	if err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	cur, err := stores.ItemStore.GetByID(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	patch, err := raw.Resolve(cur.Type)
	if err != nil {
		http.Error(w, "invalid content: "+err.Error(), http.StatusBadRequest)
		return
	}

	it, err := orchestrators.ExecuteUpdateItem(ctx, orchestrators.UpdateItemInput{ItemID: id, Patch: patch}, itemDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// handleDeleteItem handles DELETE /api/items/{id}.
func handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteItem(r.Context(), orchestrators.DeleteItemInput{ItemID: r.PathValue("id")}, itemDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRepeatItem handles POST /api/clients/{clientID}/items/repeat.
func handleRepeatItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input struct {
		TemplateID string `json:"template_id"`
		Rule       string `json:"rule"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if input.TemplateID != "" {
		tpl, err := stores.ItemStore.GetByID(ctx, input.TemplateID)
		if err != nil {
			writeError(w, err)
			return
		}
		if tpl.ClientID != r.PathValue("clientID") {
			http.Error(w, "item not found", http.StatusNotFound)
			return
		}
	}

	created, err := orchestrators.ExecuteRepeatItem(ctx, orchestrators.RepeatItemInput{
		TemplateID: input.TemplateID,
		Rule:       input.Rule,
	}, itemDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListResponse(created))
}

// Default export span around today when start or end is omitted.
const (
	exportPastDays   = 28
	exportFutureDays = 365
)

// handleExportICS handles GET /api/clients/{clientID}/calendar.ics
func handleExportICS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientID")
	today := calendar.FormatDate(timeNow())
	rng := calendar.Range{Start: r.URL.Query().Get("start"), End: r.URL.Query().Get("end")}
	if rng.Start == "" {
		rng.Start, _ = calendar.AddDays(today, -exportPastDays)
	}
	if rng.End == "" {
		rng.End, _ = calendar.AddDays(today, exportFutureDays)
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Training plan " + clientID
	}

	var buf bytes.Buffer
	err := projections.QueryExportICS(r.Context(), projections.ExportICSQuery{
		Query: calendar.Query{ClientID: clientID, Range: rng},
		Name:  name,
	}, listDeps(), &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clientID+".ics"))
	buf.WriteTo(w)
}
