package admin

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haven-chat/signalroom/internal/appeal"
	"github.com/haven-chat/signalroom/internal/ban"
	"github.com/haven-chat/signalroom/internal/database"
	"github.com/haven-chat/signalroom/internal/netaddr"
)

// Server hosts the Admin HTTP surface (spec.md §6, SPEC_FULL.md §10) over
// Postgres-backed bans/appeals and the Redis-backed live View.
type Server struct {
	view        *View
	bansStore   *database.BansStore
	banStore    *ban.Store
	appealStore *appeal.Store
}

// NewServer builds an admin Server over the given stores.
func NewServer(view *View, bansStore *database.BansStore, banStore *ban.Store, appealStore *appeal.Store) *Server {
	return &Server{view: view, bansStore: bansStore, banStore: banStore, appealStore: appealStore}
}

// Router builds the chi router for the admin HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)

	// End-user-facing, not admin-gated (spec.md §6).
	r.Post("/api/appeals", s.handleCreateAppeal)
	r.Get("/api/check-ban", s.handleCheckBan)

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/chats", s.handleChats)
		r.Get("/queue", s.handleQueue)

		r.Route("/bans", func(r chi.Router) {
			r.Get("/", s.handleListBans)
			r.Post("/", s.handleCreateBan)
			r.Delete("/{id}", s.handleDeleteBan)
		})

		r.Route("/appeals", func(r chi.Router) {
			r.Get("/", s.handleListAppeals)
			r.Patch("/{id}", s.handleUpdateAppeal)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.view.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to gather stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.view.Chats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.view.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	bans, err := s.bansStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list bans")
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

type createBanRequest struct {
	IPAddress       string `json:"ipAddress"`
	Reason          string `json:"reason"`
	DurationSeconds int64  `json:"durationSeconds"` // 0 means indefinite
}

func (s *Server) handleCreateBan(w http.ResponseWriter, r *http.Request) {
	var req createBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IPAddress == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "ipAddress and reason are required")
		return
	}

	ctx := r.Context()
	var expiresAt *int64
	var redisDuration time.Duration
	if req.DurationSeconds > 0 {
		exp := time.Now().Unix() + req.DurationSeconds
		expiresAt = &exp
		redisDuration = time.Duration(req.DurationSeconds) * time.Second
	}

	record, err := s.bansStore.Create(ctx, req.IPAddress, req.Reason, expiresAt)
	if err == database.ErrAlreadyBanned {
		writeError(w, http.StatusConflict, "ip is already banned")
		return
	}
	if err != nil {
		log.Printf("admin: create ban failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create ban")
		return
	}

	// Mirror into the Redis hot-path ban check used by the admission gate
	// (internal/ws). A zero duration means no TTL: indefinite.
	if err := s.banStore.Ban(ctx, req.IPAddress, redisDuration, req.Reason); err != nil {
		log.Printf("admin: redis ban mirror failed for %s: %v", req.IPAddress, err)
	}

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleDeleteBan(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ban id")
		return
	}

	ctx := r.Context()
	record, err := s.bansStore.Get(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up ban")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "ban not found")
		return
	}

	ok, err := s.bansStore.Delete(ctx, id)
	if err != nil || !ok {
		writeError(w, http.StatusInternalServerError, "failed to delete ban")
		return
	}
	if err := s.banStore.Unban(ctx, record.IPAddress); err != nil {
		log.Printf("admin: redis unban mirror failed for %s: %v", record.IPAddress, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAppeals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	appeals, err := s.appealStore.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list appeals")
		return
	}
	writeJSON(w, http.StatusOK, appeals)
}

type updateAppealRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) handleUpdateAppeal(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appeal id")
		return
	}

	var req updateAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != appeal.StatusApproved && req.Status != appeal.StatusRejected {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	ctx := r.Context()
	a, err := s.appealStore.Get(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up appeal")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "appeal not found")
		return
	}

	ok, err := s.appealStore.UpdateStatus(ctx, id, req.Status, req.Notes)
	if err != nil || !ok {
		writeError(w, http.StatusInternalServerError, "failed to update appeal")
		return
	}

	// Approval removes the corresponding ban, in both stores.
	if req.Status == appeal.StatusApproved {
		if err := s.bansStore.DeleteByIP(ctx, a.IPAddress); err != nil {
			log.Printf("admin: ban removal on appeal approval failed for %s: %v", a.IPAddress, err)
		}
		if err := s.banStore.Unban(ctx, a.IPAddress); err != nil {
			log.Printf("admin: redis unban on appeal approval failed for %s: %v", a.IPAddress, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type createAppealRequest struct {
	IPAddress string `json:"ipAddress"`
	Email     string `json:"email"`
	Reason    string `json:"reason"`
}

func (s *Server) handleCreateAppeal(w http.ResponseWriter, r *http.Request) {
	var req createAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IPAddress == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "ipAddress and email are required")
		return
	}

	ctx := r.Context()
	banned, _, _, err := s.banStore.IsBanned(ctx, req.IPAddress)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check ban status")
		return
	}
	if !banned {
		writeError(w, http.StatusConflict, "no active ban for this address")
		return
	}

	existing, err := s.appealStore.List(ctx, appeal.StatusPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check existing appeals")
		return
	}
	for _, a := range existing {
		if a.IPAddress == req.IPAddress {
			writeError(w, http.StatusConflict, "a pending appeal already exists for this address")
			return
		}
	}

	a, err := s.appealStore.Create(ctx, req.IPAddress, req.Email, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create appeal")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleCheckBan reports the ban status of the caller's own source address
// (spec.md §6's extraction rule — the same rule the WS admission gate uses),
// never an address the client names. A client-supplied address would turn
// this endpoint into a ban-status oracle for arbitrary IPs.
func (s *Server) handleCheckBan(w http.ResponseWriter, r *http.Request) {
	ip := netaddr.FromRequest(r)
	banned, remaining, reason, err := s.banStore.IsBanned(r.Context(), ip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check ban status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"banned":           banned,
		"remainingSeconds": remaining,
		"reason":           reason,
	})
}

// writeJSON encodes data to a buffer first so an encoding failure never
// leaves a partially-written response behind.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		log.Printf("admin: failed to encode response: %v", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestLogger logs each admin request at completion, matching the
// teacher's preference for stdlib logging over a structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Printf("admin: %s %s status=%d duration=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
