package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/mukha/internal/store"
)

// ProfileHandler serves /api/profiles and /api/profiles/{id}.
type ProfileHandler struct {
	store *store.Store
}

// NewProfileHandler creates a handler.
func NewProfileHandler(s *store.Store) *ProfileHandler {
	return &ProfileHandler{store: s}
}

type listProfilesResponse struct {
	Profiles []*store.Profile `json:"profiles"`
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/api/profiles")
	switch {
	case id == "" && r.Method == http.MethodGet:
		profiles, err := h.store.Profiles().List()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
			return
		}
		if profiles == nil {
			profiles = []*store.Profile{}
		}
		WriteJSON(w, http.StatusOK, listProfilesResponse{Profiles: profiles})

	case id != "" && r.Method == http.MethodGet:
		p, err := h.store.Profiles().Get(id)
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to get profile")
			return
		}
		WriteJSON(w, http.StatusOK, p)

	case id != "" && r.Method == http.MethodDelete:
		err := h.store.Profiles().Delete(id)
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Profile not found")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete profile")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// EventHandler serves GET /api/events?session=&limit=.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a handler.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type listEventsResponse struct {
	Events []*store.EventRecord `json:"events"`
}

func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := h.store.Events().List(r.URL.Query().Get("session"), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []*store.EventRecord{}
	}
	WriteJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
