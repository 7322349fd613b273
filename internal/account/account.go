// Package account serves the HTTP endpoints that depend on who the caller is:
// the premium reconnect lookup, the premium status, the current user and the
// operator entitlement admin API.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/swapychat/pairing-relay/internal/auth"
	"github.com/swapychat/pairing-relay/internal/entitlement"
	"github.com/swapychat/pairing-relay/internal/httpserver"
	"github.com/swapychat/pairing-relay/internal/pairing"
)

const maxAdminBodyBytes = 64 * 1024

// Store is the entitlement storage the handlers read and administer.
type Store interface {
	entitlement.Service
	Get(ctx context.Context, userID string) (entitlement.Record, error)
	Upsert(ctx context.Context, rec entitlement.Record) error
	Revoke(ctx context.Context, userID string) error
}

type Config struct {
	Pairing  *pairing.Service
	Identity auth.IdentityProvider
	Store    Store
	// AdminAPIKey enables /admin/entitlements when non-empty.
	AdminAPIKey string
	Logger      *slog.Logger
}

type Handler struct {
	svc      *pairing.Service
	identity auth.IdentityProvider
	store    Store
	admin    auth.APIKeyVerifier
	log      *slog.Logger
}

func New(cfg Config) *Handler {
	if cfg.Identity == nil {
		cfg.Identity = auth.AnonymousProvider{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		svc:      cfg.Pairing,
		identity: cfg.Identity,
		store:    cfg.Store,
		admin:    auth.APIKeyVerifier{Expected: cfg.AdminAPIKey},
		log:      cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /previous-partner", h.handlePreviousPartner)
	mux.HandleFunc("GET /is-premium", h.handleIsPremium)
	mux.HandleFunc("GET /user", h.handleUser)

	if h.admin.Expected != "" && h.store != nil {
		mux.Handle("GET /admin/entitlements/{userID}", h.requireAPIKey(h.handleGetEntitlement))
		mux.Handle("PUT /admin/entitlements/{userID}", h.requireAPIKey(h.handlePutEntitlement))
		mux.Handle("DELETE /admin/entitlements/{userID}", h.requireAPIKey(h.handleDeleteEntitlement))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpserver.WriteJSON(w, status, errorResponse{Error: msg})
}

// caller resolves the request identity. Invalid credentials count as anonymous.
func (h *Handler) caller(r *http.Request) auth.Identity {
	id, err := auth.Resolve(h.identity, r)
	if err != nil {
		h.log.Debug("ignoring invalid credentials", "err", err, "path", r.URL.Path)
		return auth.Identity{}
	}
	return id
}

type previousPartnerResponse struct {
	PreviousPartner string `json:"previousPartner"`
}

func (h *Handler) handlePreviousPartner(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "Pairing unavailable")
		return
	}

	partner, err := h.svc.RequestReconnect(r.Context(), h.caller(r).UserID)
	switch {
	case err == nil:
		httpserver.WriteJSON(w, http.StatusOK, previousPartnerResponse{PreviousPartner: partner})
	case errors.Is(err, pairing.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, pairing.ErrEntitlementRequired):
		writeError(w, http.StatusForbidden, "Premium required")
	case errors.Is(err, pairing.ErrNoPriorPartner):
		writeError(w, http.StatusNotFound, "No previous partner")
	default:
		h.log.Error("previous partner lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

type premiumResponse struct {
	Premium bool `json:"premium"`
}

func (h *Handler) handleIsPremium(w http.ResponseWriter, r *http.Request) {
	id := h.caller(r)
	if id.Anonymous() || h.store == nil {
		httpserver.WriteJSON(w, http.StatusOK, premiumResponse{})
		return
	}

	ok, err := h.store.IsEntitled(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("entitlement lookup failed", "err", err, "user_id", id.UserID)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, premiumResponse{Premium: ok})
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	id := h.caller(r)
	if id.Anonymous() {
		httpserver.WriteJSON(w, http.StatusOK, nil)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, userResponse{ID: id.UserID, Name: id.Name, Email: id.Email})
}

func (h *Handler) requireAPIKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.admin.VerifyRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next(w, r)
	})
}

func (h *Handler) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), r.PathValue("userID"))
	if errors.Is(err, entitlement.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.log.Error("get entitlement", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, rec)
}

type entitlementUpdate struct {
	Email        string     `json:"email"`
	IsPremium    bool       `json:"isPremium"`
	PremiumUntil *time.Time `json:"premiumUntil"`
}

func (h *Handler) handlePutEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var body entitlementUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	err := h.store.Upsert(r.Context(), entitlement.Record{
		UserID:       userID,
		Email:        body.Email,
		IsPremium:    body.IsPremium,
		PremiumUntil: body.PremiumUntil,
	})
	if err != nil {
		h.log.Error("upsert entitlement", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.log.Info("entitlement updated", "user_id", userID, "premium", body.IsPremium)

	rec, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.log.Error("get entitlement", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDeleteEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	err := h.store.Revoke(r.Context(), userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.log.Error("revoke entitlement", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	h.log.Info("entitlement revoked", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}
