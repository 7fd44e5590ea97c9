package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/store"
)

// BindingHandler serves /api/bindings and /api/bindings/{id}.
type BindingHandler struct {
	store    *store.Store
	onChange func() error
}

// NewBindingHandler creates a handler. onChange, if set, runs after every
// successful write so the running engine picks up the new table.
func NewBindingHandler(s *store.Store, onChange func() error) *BindingHandler {
	return &BindingHandler{store: s, onChange: onChange}
}

func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/api/bindings")
	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type bindingRequest struct {
	Event   gesture.EventName `json:"event"`
	Action  action.Kind       `json:"action"`
	Plugin  string            `json:"plugin"`
	Command string            `json:"command"`
	Enabled *bool             `json:"enabled"`
}

type bindingResponse struct {
	ID        string            `json:"id"`
	Event     gesture.EventName `json:"event"`
	Action    action.Kind       `json:"action"`
	Plugin    string            `json:"plugin,omitempty"`
	Command   string            `json:"command,omitempty"`
	Enabled   bool              `json:"enabled"`
	CreatedAt string            `json:"created_at"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

func toBindingResponse(b *store.Binding) bindingResponse {
	return bindingResponse{
		ID:        b.ID,
		Event:     b.Event,
		Action:    b.Action.Kind,
		Plugin:    b.Action.Plugin,
		Command:   b.Action.Command,
		Enabled:   b.Enabled,
		CreatedAt: b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *BindingHandler) list(w http.ResponseWriter) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}
	resp := listBindingsResponse{Bindings: make([]bindingResponse, 0, len(bindings))}
	for _, b := range bindings {
		resp.Bindings = append(resp.Bindings, toBindingResponse(b))
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *BindingHandler) get(w http.ResponseWriter, id string) {
	b, err := h.store.Bindings().Get(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}
	WriteJSON(w, http.StatusOK, toBindingResponse(b))
}

func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	b := &store.Binding{
		Event:   req.Event,
		Action:  action.Spec{Kind: req.Action, Plugin: req.Plugin, Command: req.Command},
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if err := b.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Bindings().Create(b); err != nil {
		WriteError(w, http.StatusConflict, "Binding already exists")
		return
	}
	if !h.changed(w) {
		return
	}
	WriteJSON(w, http.StatusCreated, toBindingResponse(b))
}

func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().Get(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Event != "" {
		b.Event = req.Event
	}
	if req.Action != "" {
		b.Action = action.Spec{Kind: req.Action, Plugin: req.Plugin, Command: req.Command}
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if err := b.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Bindings().Update(b); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}
	if !h.changed(w) {
		return
	}
	WriteJSON(w, http.StatusOK, toBindingResponse(b))
}

func (h *BindingHandler) delete(w http.ResponseWriter, id string) {
	err := h.store.Bindings().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}
	if !h.changed(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// changed notifies the engine. It writes an error response and returns false
// when the reload fails.
func (h *BindingHandler) changed(w http.ResponseWriter) bool {
	if h.onChange == nil {
		return true
	}
	if err := h.onChange(); err != nil {
		WriteError(w, http.StatusInternalServerError, "Saved, but reload failed: "+err.Error())
		return false
	}
	return true
}
