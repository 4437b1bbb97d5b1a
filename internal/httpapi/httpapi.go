package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/report"
	"shiftledger/backend/internal/service"
	"shiftledger/backend/internal/store"
)

type API struct {
	service       *service.Service
	reports       *report.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, reports *report.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		reports:       reports,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes a hex HMAC-SHA256 token for an hour bucket given
// as Unix seconds truncated to the hour.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts tokens of the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
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

const (
	roleCashier = domain.RoleCashier
	roleManager = domain.RoleManager
	roleAdmin   = domain.RoleAdmin
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/shifts/open", a.requireAuth(a.handleShiftOpen, roleCashier, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/shifts/active", a.requireAuth(a.handleShiftActive, roleCashier, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/shifts", a.requireAuth(a.handleShiftList, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/shifts/", a.requireAuth(a.handleShiftActions, roleCashier, roleManager, roleAdmin))

	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/reports/range", a.requireAuth(a.handleRangeReport, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, roleManager, roleAdmin))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, roleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.Authorize(r.Context(), token, roles...)
		switch {
		case errors.Is(err, errForbiddenRole):
			writeError(w, http.StatusForbidden, err)
			return
		case errors.Is(err, domain.ErrRoleLookupFailed):
			log.Printf("[auth] WARN: %v", err)
			writeError(w, http.StatusServiceUnavailable, errors.New("role lookup unavailable"))
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token that mutating requests must echo
// in the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login is called before a client has fetched a CSRF token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = actor.Username
	}
	if domain.Role(actor.Role) == roleCashier && req.UserID != actor.Username {
		writeError(w, http.StatusForbidden, errors.New("cashiers can only open their own shift"))
		return
	}

	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.GetActiveShift(r.Context(), r.URL.Query().Get("terminal_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.ListShifts(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleShiftActions serves /api/v1/shifts/{id} and its sub-resources.
func (a *API) handleShiftActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/shifts/"), "/")
	parts := strings.Split(rest, "/")
	shiftID := strings.TrimSpace(parts[0])
	if shiftID == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, errors.New("unknown shift path"))
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		a.handleShiftGet(w, r, shiftID)
	case "transactions":
		a.handleShiftTransactions(w, r, shiftID)
	case "close":
		a.handleShiftClose(w, r, shiftID)
	case "remote-close":
		a.handleShiftRemoteClose(w, r, shiftID)
	case "balance":
		a.handleShiftBalance(w, r, shiftID)
	case "summary":
		a.handleShiftSummary(w, r, shiftID)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown shift action"))
	}
}

func (a *API) handleShiftGet(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.GetShift(r.Context(), shiftID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftTransactions(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RecordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RecordTransaction(r.Context(), shiftID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	req.ShiftID = shiftID
	req.OperatorID = actor.Username

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftRemoteClose(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RemoteCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	req.ShiftID = shiftID
	req.ManagerID = actor.Username

	resp, err := a.service.RemoteCloseShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftBalance(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.BalanceEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow("pin:balance:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	req.ShiftID = shiftID
	req.EditorID = actor.Username

	resp, err := a.service.EditClosedShiftBalance(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftSummary(w http.ResponseWriter, r *http.Request, shiftID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.ShiftSummary(r.Context(), shiftID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	rep, err := a.reports.DailyReport(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeReport(w, r, rep)
}

func (a *API) handleRangeReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	rep, err := a.reports.RangeReport(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeReport(w, r, rep)
}

func writeReport(w http.ResponseWriter, r *http.Request, rep domain.SalesReport) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != "csv" {
		writeJSON(w, http.StatusOK, rep)
		return
	}

	body, err := salesReportToCSV(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"shift-report-%s_%s.csv\"", rep.From, rep.To))
	_, _ = w.Write(body)
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cashiers := a.auth.ListCashiers(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func salesReportToCSV(rep domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "from", rep.From},
		{"summary", "to", rep.To},
		{"summary", "shifts", strconv.Itoa(rep.ShiftCount)},
		{"summary", "open_shifts", strconv.Itoa(rep.OpenShiftCount)},
		{"summary", "gross_sales_cents", strconv.FormatInt(rep.GrossSalesCents, 10)},
		{"summary", "returns_cents", strconv.FormatInt(rep.ReturnsCents, 10)},
		{"summary", "voids_cents", strconv.FormatInt(rep.VoidsCents, 10)},
		{"summary", "net_sales_cents", strconv.FormatInt(rep.NetSalesCents, 10)},
	}
	for _, status := range []domain.DiscrepancyStatus{domain.DiscrepancyBalanced, domain.DiscrepancyOver, domain.DiscrepancyShort, domain.DiscrepancyPending} {
		rows = append(rows, []string{"status", string(status), strconv.Itoa(rep.StatusCounts[string(status)])})
	}
	for _, p := range rep.ByPaymentMethod {
		rows = append(rows,
			[]string{"payment", string(p.PaymentMethod) + "_transactions", strconv.FormatInt(p.Transactions, 10)},
			[]string{"payment", string(p.PaymentMethod) + "_total_cents", strconv.FormatInt(p.TotalCents, 10)},
		)
	}
	for _, c := range rep.ByCategory {
		rows = append(rows, []string{"category", c.Category + "_total_cents", strconv.FormatInt(c.TotalCents, 10)})
	}
	for _, s := range rep.ByStaff {
		rows = append(rows, []string{"staff", s.UserID + "_sales_cents", strconv.FormatInt(s.SalesCents, 10)})
	}
	for _, p := range rep.TopProducts {
		rows = append(rows, []string{"top_product", p.SKU + "_revenue_cents", strconv.FormatInt(p.RevenueCents, 10)})
	}
	for _, row := range rep.Reconciliations {
		diff := ""
		if row.Reconciliation.DiscrepancyCents != nil {
			diff = strconv.FormatInt(*row.Reconciliation.DiscrepancyCents, 10)
		}
		rows = append(rows,
			[]string{"shift", row.ShiftID + "_expected_cents", strconv.FormatInt(row.Reconciliation.ExpectedClosingCents, 10)},
			[]string{"shift", row.ShiftID + "_discrepancy_cents", diff},
			[]string{"shift", row.ShiftID + "_status", string(row.Reconciliation.Status)},
		)
	}
	for _, alert := range rep.Alerts {
		rows = append(rows, []string{"alert", alert.Code, alert.ShiftID})
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrShiftNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case domain.IsRetryable(err),
		errors.Is(err, domain.ErrShiftAlreadyOpen),
		errors.Is(err, domain.ErrShiftClosed),
		errors.Is(err, domain.ErrShiftStillOpen):
		return http.StatusConflict
	case domain.IsAuthorization(err):
		return http.StatusForbidden
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRoleLookupFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if domain.IsRetryable(err) {
		writeJSON(w, status, map[string]any{
			"error":     err.Error(),
			"retryable": true,
		})
		return
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses; 4xx messages are meant for
// the caller.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
