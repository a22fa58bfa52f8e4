package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stokku/backend/internal/allocator"
	"stokku/backend/internal/domain"
	"stokku/backend/internal/opname"
	"stokku/backend/internal/service"
	"stokku/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	defaultDevice string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, defaultDevice string, logger *zap.Logger) *API {
	if defaultDevice == "" {
		defaultDevice = "main-device"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		defaultDevice: defaultDevice,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/items", a.requireAuth(a.handleItems, "cashier", "admin"))
	mux.HandleFunc("/api/v1/items/", a.requireAuth(a.handleItemActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, "cashier", "admin"))

	mux.HandleFunc("/api/v1/opname/session", a.requireAuth(a.handleOpnameSession, "cashier", "admin"))
	mux.HandleFunc("/api/v1/opname/session/lines", a.requireAuth(a.handleOpnameLines, "cashier", "admin"))
	mux.HandleFunc("/api/v1/opname/session/draft", a.requireAuth(a.handleOpnameDraft, "cashier", "admin"))
	mux.HandleFunc("/api/v1/opname/session/summary", a.requireAuth(a.handleOpnameSummary, "cashier", "admin"))
	mux.HandleFunc("/api/v1/opname/session/report", a.requireAuth(a.handleOpnameReport, "cashier", "admin"))
	mux.HandleFunc("/api/v1/opname/session/commit", a.requireAuth(a.handleOpnameCommit, "admin"))
	mux.HandleFunc("/api/v1/opname/monitoring", a.requireAuth(a.handleMonitoring, "admin"))
	mux.HandleFunc("/api/v1/opname/monitoring/", a.requireAuth(a.handleMonitoringItem, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// deviceID identifies which terminal's opname draft a request addresses. A
// single-terminal shop never needs to set the header at all.
func (a *API) deviceID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Device-ID"))
	if id == "" {
		return a.defaultDevice
	}
	return id
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.service.ListItems(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !requireRole(r, "admin") {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		var req domain.ItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.CreateItem(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// handleItemActions serves /api/v1/items/{code} and
// /api/v1/items/{code}/movements.
func (a *API) handleItemActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/items/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("item code required"))
		return
	}
	code := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			item, err := a.service.LookupItem(r.Context(), code)
			if err != nil {
				a.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"item": item})
		case http.MethodPatch:
			if !requireRole(r, "admin") {
				a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			var req domain.ItemUpdateRequest
			if err := decodeJSON(r, &req); err != nil {
				a.writeError(w, http.StatusBadRequest, err)
				return
			}
			item, err := a.service.UpdateItem(r.Context(), code, req)
			if err != nil {
				a.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"item": item})
		default:
			a.writeMethodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "movements" {
		a.handleItemMovements(w, r, code)
		return
	}

	a.writeError(w, http.StatusBadRequest, errors.New("invalid item action path"))
}

func (a *API) handleItemMovements(w http.ResponseWriter, r *http.Request, code string) {
	if !requireRole(r, "admin") {
		a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		from, err := parseTimeParam(r.URL.Query().Get("from"))
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		to, err := parseTimeParam(r.URL.Query().Get("to"))
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)

		movements, err := a.service.ListMovements(r.Context(), code, from, to, limit)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
	case http.MethodPost:
		var req domain.ApplyMovementRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.ApplyMovement(r.Context(), code, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleOpnameSession(w http.ResponseWriter, r *http.Request) {
	device := a.deviceID(r)

	switch r.Method {
	case http.MethodPost:
		var req domain.OpnameStartRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		session, err := a.service.StartOpname(r.Context(), device, req.Mode)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"session": session})
	case http.MethodGet:
		session, err := a.service.LoadOpname(r.Context(), device)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": session})
	case http.MethodDelete:
		if err := a.service.CancelOpname(r.Context(), device); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleOpnameLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.OpnameLineRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	overwrite := r.URL.Query().Get("overwrite") == "true"

	session, err := a.service.UpsertOpnameLine(r.Context(), a.deviceID(r), req, overwrite)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleOpnameDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.OpnameDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := a.service.SaveOpnameDraft(r.Context(), a.deviceID(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (a *API) handleOpnameSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.OpnameSummary(r.Context(), a.deviceID(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (a *API) handleOpnameReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.OpnameReport(r.Context(), a.deviceID(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

func (a *API) handleOpnameCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.CommitOpname(r.Context(), a.deviceID(r))
	if err != nil {
		var partial *opname.PartialCommitError
		if errors.As(err, &partial) {
			// Applied adjustments stand; the failed lines were kept as the
			// remaining draft so the client retries the commit for them only.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "commit partially applied",
				"session_id": partial.SessionID,
				"applied":    partial.Applied,
				"failed":     partial.Failed,
			})
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			a.writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)

	records, err := a.service.ListMonitoringRecords(r.Context(), date, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *API) handleMonitoringItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/opname/monitoring/"), "/")
	if code == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("item code required"))
		return
	}

	status, err := a.service.ItemMonitoringStatus(r.Context(), code)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_code": code, "status": status})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(startedAt)))
	})
}

func requireRole(r *http.Request, role string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	return ok && actor.Role == role
}

// writeServiceError maps domain errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateCode),
		errors.Is(err, service.ErrSessionActive),
		errors.Is(err, service.ErrLineExists):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInsufficientStock):
		a.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, allocator.ErrInvalidCategory):
		a.writeError(w, http.StatusBadRequest, err)
	case strings.Contains(err.Error(), "admin role required"):
		a.writeError(w, http.StatusForbidden, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if day, err := time.Parse("2006-01-02", raw); err == nil {
		return day, nil
	}
	return time.Time{}, errors.New("time filters accept RFC3339 or YYYY-MM-DD")
}
