package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Authorizer validates a bearer token and yields the session identity. The
// session package provides the JWT-backed implementation.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (user string, role Role, err error)
}

// Handler is the HTTP seam the mobile rendering layer talks to: task intents
// go in, UiState snapshots stream out.
type Handler struct {
	engine      *Engine
	store       Store
	auth        Authorizer
	supervisors []string
	maxPhoto    int64
}

func NewHandler(engine *Engine, store Store, auth Authorizer, supervisors []string, maxPhoto int64) *Handler {
	return &Handler{
		engine:      engine,
		store:       store,
		auth:        auth,
		supervisors: supervisors,
		maxPhoto:    maxPhoto,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tareas", h.createTask)
	mux.HandleFunc("PATCH /tareas/{id}", h.editTask)
	mux.HandleFunc("DELETE /tareas/{id}", h.deleteTask)
	mux.HandleFunc("POST /tareas/{id}/asignar", h.assignTask)
	mux.HandleFunc("POST /tareas/{id}/responder", h.respondTask)
	mux.HandleFunc("POST /filtros", h.applyFilters)
	mux.HandleFunc("POST /filtros/reset", h.resetFilters)
	mux.HandleFunc("GET /estado", h.streamState)
	mux.HandleFunc("GET /supervisores", h.listSupervisors)
	return mux
}

func (h *Handler) ensureAuthorized(r *http.Request) (string, Role, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return "", "", errors.New("missing bearer token")
	}
	return h.auth.Authorize(r.Context(), token)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	user, role, err := h.ensureAuthorized(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != RoleCreator && role != RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(h.maxPhoto); err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}
	file, fileHeader, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "photo is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read photo", http.StatusInternalServerError)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	t := Task{
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
		Floor:       r.FormValue("floor"),
		CreatedBy:   user,
	}
	if t.Description == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}

	created, err := h.store.Create(r.Context(), t, Photo{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) editTask(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.ensureAuthorized(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Description *string `json:"description"`
		Location    *string `json:"location"`
		Floor       *string `json:"floor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	err = h.engine.Edit(r.Context(), role, r.PathValue("id"), EditFields{
		Description: req.Description,
		Location:    req.Location,
		Floor:       req.Floor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.ensureAuthorized(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.engine.Delete(r.Context(), role, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignTask(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.ensureAuthorized(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Supervisor string `json:"supervisor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if err := h.engine.Assign(r.Context(), role, r.PathValue("id"), req.Supervisor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondTask(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.ensureAuthorized(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(h.maxPhoto); err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}
	file, fileHeader, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "photo is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read photo", http.StatusInternalServerError)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	photo := Photo{Filename: fileHeader.Filename, ContentType: contentType, Data: content}
	if err := h.engine.Complete(r.Context(), role, r.PathValue("id"), photo, r.FormValue("comment")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applyFilters(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.ensureAuthorized(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Mode       *string `json:"mode"`
		Floor      *string `json:"floor"`
		FreeText   *string `json:"freeText"`
		Supervisor *string `json:"supervisor"`
		DateFrom   *string `json:"dateFrom"`
		DateTo     *string `json:"dateTo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if req.DateFrom != nil || req.DateTo != nil {
		from, err := parseOptionalTime(req.DateFrom)
		if err != nil {
			http.Error(w, "invalid dateFrom", http.StatusBadRequest)
			return
		}
		to, err := parseOptionalTime(req.DateTo)
		if err != nil {
			http.Error(w, "invalid dateTo", http.StatusBadRequest)
			return
		}
		if err := h.engine.SetDateRange(from, to); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Mode != nil {
		mode := Status(*req.Mode)
		if !mode.Valid() {
			http.Error(w, "unknown mode", http.StatusBadRequest)
			return
		}
		h.engine.SetMode(mode)
	}
	if req.Supervisor != nil {
		h.engine.SetSupervisor(*req.Supervisor)
	}
	if req.Floor != nil {
		h.engine.SetFloor(*req.Floor)
	}
	if req.FreeText != nil {
		h.engine.SetFreeText(*req.FreeText)
	}

	writeJSON(w, http.StatusOK, h.engine.State())
}

func (h *Handler) resetFilters(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.ensureAuthorized(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.engine.ResetFilters()
	writeJSON(w, http.StatusOK, h.engine.State())
}

// streamState pushes UiState snapshots over SSE until the client goes away.
func (h *Handler) streamState(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.ensureAuthorized(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	states, detach := h.engine.Watch()
	defer detach()

	for {
		select {
		case <-r.Context().Done():
			return
		case state, open := <-states:
			if !open {
				return
			}
			payload, err := json.Marshal(state)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *Handler) listSupervisors(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.ensureAuthorized(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"supervisors": h.supervisors})
}

func parseOptionalTime(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	switch KindOf(err) {
	case KindValidation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case KindPermission:
		http.Error(w, "forbidden", http.StatusForbidden)
	case KindTimeout:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case KindUpload, KindRemoteRead, KindRemoteWrite:
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
