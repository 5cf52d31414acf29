// Package httpapi exposes the data-access core as a JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fitfi/service_layer/internal/challenge"
	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/metrics"
	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/internal/snapshot"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errBadRequest  = errors.New("bad request")
)

// HealthChecker probes the remote store.
type HealthChecker interface {
	Health(ctx context.Context) remote.HealthStatus
}

// SnapshotValidator checks the bundled snapshot files.
type SnapshotValidator interface {
	Validate(ctx context.Context) snapshot.Report
}

// Deps are the services the API is built on. Health may be nil when the
// remote store is disabled.
type Deps struct {
	Fetch      *fetch.Service
	Challenges *challenge.Service
	Snapshots  SnapshotValidator
	Health     HealthChecker
	Limiter    *RateLimiter
	Logger     *logging.Logger

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
}

type handler struct {
	fetch      *fetch.Service
	challenges *challenge.Service
	snapshots  SnapshotValidator
	health     HealthChecker
}

// NewHandler returns a router exposing the read API, challenge writes and
// the admin endpoints.
func NewHandler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	h := &handler{
		fetch:      d.Fetch,
		challenges: d.Challenges,
		snapshots:  d.Snapshots,
		health:     d.Health,
	}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(d.Logger))
	r.Use(metricsMiddleware)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if d.Limiter != nil {
		api.Use(d.Limiter.Handler)
	}
	api.HandleFunc("/products", h.products).Methods(http.MethodGet)
	api.HandleFunc("/outfits", h.outfits).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.user).Methods(http.MethodGet)
	api.HandleFunc("/tribes", h.tribes).Methods(http.MethodGet)
	api.HandleFunc("/tribes/{slug}", h.tribe).Methods(http.MethodGet)
	api.HandleFunc("/tribes/{tribeID}/challenges", h.tribeChallenges).Methods(http.MethodGet)
	api.HandleFunc("/tribes/{tribeID}/challenges", h.createChallenge).Methods(http.MethodPost)
	api.HandleFunc("/tribes/{tribeID}/leaderboard", h.leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/rankings/tribes", h.tribeRankings).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}", h.challenge).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}/submissions", h.submissions).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}/submissions", h.createSubmission).Methods(http.MethodPost)
	api.HandleFunc("/challenges/{id}/status", h.setStatus).Methods(http.MethodPatch)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/cache", h.cacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache", h.clearCache).Methods(http.MethodDelete)
	admin.HandleFunc("/snapshots", h.validateSnapshots).Methods(http.MethodGet)

	if c := newCORS(d.CORSOrigins); c != nil {
		return c.Handler(r)
	}
	return r
}

// =============================================================================
// Reads
// =============================================================================

func (h *handler) products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.fetch.Products(r.Context(), domain.ProductFilter{
		Gender:    q.Get("gender"),
		Category:  q.Get("category"),
		Archetype: q.Get("archetype"),
		Limit:     n,
	}))
}

func (h *handler) outfits(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.fetch.Outfits(r.Context(), domain.OutfitFilter{
		Archetype: r.URL.Query().Get("archetype"),
		Limit:     n,
	}))
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fetch.User(r.Context(), mux.Vars(r)["id"]))
}

func (h *handler) tribes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f := domain.TribeFilter{Archetype: q.Get("archetype"), Limit: n}
	if raw := q.Get("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: featured must be a boolean", errBadRequest))
			return
		}
		f.Featured = &featured
	}
	writeJSON(w, http.StatusOK, h.fetch.Tribes(r.Context(), f))
}

func (h *handler) tribe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fetch.TribeBySlug(r.Context(), domain.TribeLookup{
		Slug:   mux.Vars(r)["slug"],
		UserID: r.URL.Query().Get("user_id"),
	}))
}

func (h *handler) tribeChallenges(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f := domain.ChallengeFilter{
		TribeID: mux.Vars(r)["tribeID"],
		Status:  domain.ChallengeStatus(r.URL.Query().Get("status")),
		Limit:   n,
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown status %q", errBadRequest, f.Status))
		return
	}
	writeJSON(w, http.StatusOK, h.challenges.Challenges(r.Context(), f))
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.challenges.TribeLeaderboard(r.Context(), mux.Vars(r)["tribeID"]))
}

func (h *handler) tribeRankings(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.challenges.TribeRankings(r.Context(), n))
}

func (h *handler) challenge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.challenges.Challenge(r.Context(), mux.Vars(r)["id"]))
}

func (h *handler) submissions(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.challenges.Submissions(r.Context(), domain.SubmissionFilter{
		ChallengeID: mux.Vars(r)["id"],
		UserID:      r.URL.Query().Get("user_id"),
		Limit:       n,
	}))
}

// =============================================================================
// Writes
// =============================================================================

type created[T any] struct {
	Data T `json:"data"`
}

func (h *handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	var in challenge.SubmissionInput
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in.ChallengeID = mux.Vars(r)["id"]

	sub, err := h.challenges.CreateSubmission(r.Context(), in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created[domain.TribeChallengeSubmission]{Data: sub})
}

func (h *handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	var in challenge.ChallengeInput
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in.TribeID = mux.Vars(r)["tribeID"]

	c, err := h.challenges.CreateChallenge(r.Context(), in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created[domain.TribeChallenge]{Data: c})
}

func (h *handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status domain.ChallengeStatus `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.challenges.SetStatus(r.Context(), mux.Vars(r)["id"], payload.Status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, created[domain.TribeChallenge]{Data: c})
}

// =============================================================================
// Admin
// =============================================================================

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Status        string               `json:"status"`
		RemoteEnabled bool                 `json:"remote_enabled"`
		Remote        *remote.HealthStatus `json:"remote,omitempty"`
	}{Status: "ok", RemoteEnabled: h.fetch.RemoteEnabled()}

	if h.health != nil {
		hs := h.health.Health(r.Context())
		body.Remote = &hs
		if !hs.Healthy {
			body.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fetch.CacheStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) clearCache(w http.ResponseWriter, r *http.Request) {
	families := r.URL.Query()["family"]
	if len(families) == 0 {
		if err := h.fetch.ClearCache(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	n, err := h.fetch.Invalidate(r.Context(), families...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *handler) validateSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, errors.New("snapshot validation not configured"))
		return
	}
	writeJSON(w, http.StatusOK, h.snapshots.Validate(r.Context()))
}

// =============================================================================
// Helpers
// =============================================================================

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, challenge.ErrNotEligible), errors.Is(err, challenge.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, challenge.ErrInvalidSubmission), errors.Is(err, challenge.ErrInvalidChallenge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func limitParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
