package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"organiflow/api/internal/export"
	"organiflow/api/internal/gesture"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
	"organiflow/api/internal/search"
	"organiflow/api/internal/store"
)

const (
	maxListLimit  = 100
	historyPrefix = "/api/history/"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	metricsPath string
	log         *logrus.Entry
	metrics     http.Handler
}

func NewHTTPServer(service *Service, corsOrigin, metricsPath string, log *logrus.Entry) *HTTPServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &HTTPServer{
		service:     service,
		corsOrigin:  corsOrigin,
		metricsPath: metricsPath,
		log:         log.WithField("component", "http"),
		metrics:     promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	api := s.withMiddleware(http.HandlerFunc(s.handle))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == s.metricsPath && r.Method == http.MethodGet {
			s.metrics.ServeHTTP(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})
}

type setManagerRequest struct {
	ID           int64  `json:"id" validate:"required,gt=0"`
	NewManagerID *int64 `json:"new_manager_id" validate:"omitempty,gt=0"`
}

type createEmployeeRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Title     string `json:"title" validate:"max=200"`
	ManagerID *int64 `json:"manager_id" validate:"omitempty,gt=0"`
}

type employeeDTO struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,max=200"`
	Title     string `json:"title" validate:"max=200"`
	ManagerID *int64 `json:"manager_id" validate:"omitempty,gt=0"`
	Order     *int   `json:"order" validate:"omitempty,gte=0"`
}

type repositionRequest struct {
	Employees []employeeDTO `json:"employees" validate:"required,min=1,dive"`
}

type swapEndRequest struct {
	FromSlot   string `json:"fromSlot" validate:"required"`
	ToSlot     string `json:"toSlot" validate:"required"`
	HasChanged bool   `json:"hasChanged"`
	Policy     string `json:"policy" validate:"omitempty,oneof=reparent swap"`
}

// treeNode is the nested shape the tree renderer consumes.
type treeNode struct {
	Name       string         `json:"name"`
	Attributes treeAttributes `json:"attributes"`
	Children   []treeNode     `json:"children"`
}

type treeAttributes struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ManagerID *int64 `json:"manager_id"`
	Slot      string `json:"slot"`
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead

	switch {
	case isRead && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case isRead && r.URL.Path == "/api/ready":
		s.handleReady(w, r)

	case isRead && r.URL.Path == "/api/employees":
		records, err := s.service.Employees(r.Context())
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)

	case r.Method == http.MethodPost && r.URL.Path == "/api/employees":
		var body createEmployeeRequest
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		created, err := s.service.AddEmployee(r.Context(), store.NewEmployee{
			Name:      body.Name,
			Title:     body.Title,
			ManagerID: body.ManagerID,
		})
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case isRead && r.URL.Path == "/api/tree":
		forest, version, err := s.service.Tree(r.Context())
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version": version,
			"count":   forest.Len(),
			"tree":    toTree(forest),
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/update-employee-manager":
		var body setManagerRequest
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		if err := s.service.SetManager(r.Context(), body.ID, body.NewManagerID); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": body.ID, "new_manager_id": body.NewManagerID})

	case r.Method == http.MethodPost && r.URL.Path == "/api/employees/reposition":
		var body repositionRequest
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		records := make([]hierarchy.Employee, 0, len(body.Employees))
		for _, e := range body.Employees {
			records = append(records, hierarchy.Employee{
				ID:        e.ID,
				Name:      strings.TrimSpace(e.Name),
				Title:     strings.TrimSpace(e.Title),
				ManagerID: e.ManagerID,
				Order:     e.Order,
			})
		}
		if err := s.service.Reposition(r.Context(), records); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": len(records)})

	case r.Method == http.MethodPost && r.URL.Path == "/api/gestures/swap-end":
		s.handleSwapEnd(w, r)

	case isRead && r.URL.Path == "/api/search":
		s.handleSearch(w, r)

	case isRead && r.URL.Path == "/api/history":
		limit, ok := s.queryLimit(w, r, 20)
		if !ok {
			return
		}
		items, err := s.service.History(limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case isRead && strings.HasPrefix(r.URL.Path, historyPrefix):
		s.handleHistoryDiff(w, r)

	case r.Method == http.MethodPost && r.URL.Path == "/api/snapshots":
		obj, err := s.service.ExportSnapshot(r.Context())
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, obj)

	case isRead && r.URL.Path == "/api/snapshots":
		limit, ok := s.queryLimit(w, r, 20)
		if !ok {
			return
		}
		items, err := s.service.Snapshots(r.Context(), limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case isRead && r.URL.Path == "/api/export":
		s.handleExport(w, r)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.service.CacheConfigured() {
		checks["cache"] = map[string]any{"status": "ok"}
		if err := s.service.PingCache(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}

	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSwapEnd(w http.ResponseWriter, r *http.Request) {
	var body swapEndRequest
	if !s.decodeAndValidate(w, r, &body) {
		return
	}
	policy, err := hierarchy.ParsePolicy(body.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_POLICY", err.Error(), nil)
		return
	}

	outcome, err := s.service.SwapEnd(r.Context(), gesture.SwapEnd{
		FromSlot:   body.FromSlot,
		ToSlot:     body.ToSlot,
		HasChanged: body.HasChanged,
	}, policy)
	if err != nil {
		status, code, message, details := mapError(err)
		if status >= http.StatusInternalServerError {
			s.requestLog(r).WithError(err).Error("gesture failed")
		}
		if outcome.Message != "" {
			message = outcome.Message
		}
		response := map[string]any{
			"code":    code,
			"error":   message,
			"outcome": s.outcomeBody(outcome),
		}
		if details != nil {
			response["details"] = details
		}
		writeJSON(w, status, response)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": s.outcomeBody(outcome)})
}

func (s *HTTPServer) handleHistoryDiff(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, historyPrefix)
	if err := validate.Var(hash, "required,hexadecimal,min=4,max=40"); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_HASH", "hash must be 4 to 40 hex characters", nil)
		return
	}
	diff, err := s.service.HistoryDiff(hash)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *HTTPServer) outcomeBody(outcome orgsync.Outcome) map[string]any {
	body := map[string]any{
		"state":   outcome.State,
		"message": outcome.Message,
	}
	if outcome.ID != uuid.Nil {
		body["gestureId"] = outcome.ID.String()
	}
	if len(outcome.Plan.Updates) > 0 {
		body["updates"] = outcome.Plan.Updates
	}
	records := s.service.controller.Store()
	if records.Loaded() {
		body["version"] = records.Version()
		body["employees"] = records.Snapshot()
	}
	return body
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := s.queryLimit(w, r, 20)
	if !ok {
		return
	}
	offset, err := optionalInt(query.Get("offset"))
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "offset must be a non-negative integer", nil)
		return
	}
	q := search.Query{
		Text:   strings.TrimSpace(query.Get("q")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(query.Get("manager_id")); raw != "" {
		managerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || managerID <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "manager_id must be a positive integer", nil)
			return
		}
		q.ManagerID = &managerID
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) queryLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer", nil)
		return 0, false
	}
	if limit == 0 {
		limit = fallback
	}
	return min(limit, maxListLimit), true
}

func (s *HTTPServer) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	if err := validate.Struct(target); err != nil {
		s.writeMappedError(w, r, err)
		return false
	}
	return true
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.requestLog(r).WithError(err).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requestLog(r *http.Request) *logrus.Entry {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	return s.log.WithField("request_id", requestID)
}

func toTree(forest hierarchy.Forest) []treeNode {
	out := make([]treeNode, 0, len(forest))
	for _, n := range forest {
		out = append(out, toTreeNode(n))
	}
	return out
}

func toTreeNode(n *hierarchy.Node) treeNode {
	node := treeNode{
		Name: n.Record.Name,
		Attributes: treeAttributes{
			ID:        n.Record.ID,
			Title:     n.Record.Title,
			ManagerID: n.Record.ManagerID,
			Slot:      gesture.SlotID(n.Record),
		},
		Children: make([]treeNode, 0, len(n.Children)),
	}
	for _, child := range n.Children {
		node.Children = append(node.Children, toTreeNode(child))
	}
	return node
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		observeRequest(routeLabel(r.URL.Path), writer.status)
		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var knownRoutes = map[string]struct{}{
	"/api/health":                  {},
	"/api/ready":                   {},
	"/api/employees":               {},
	"/api/tree":                    {},
	"/api/update-employee-manager": {},
	"/api/employees/reposition":    {},
	"/api/gestures/swap-end":       {},
	"/api/search":                  {},
	"/api/history":                 {},
	"/api/snapshots":               {},
	"/api/export":                  {},
}

// routeLabel keeps metric cardinality bounded.
func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	if strings.HasPrefix(path, historyPrefix) {
		return historyPrefix + "{hash}"
	}
	return "other"
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(strings.TrimSpace(r.URL.Query().Get("format")))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	result, err := s.service.ExportChart(r.Context(), format, r.URL.Query().Get("title"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(result.Data)
	}
}
