package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rolodexhq/rolodex/internal/contact"
	"github.com/rolodexhq/rolodex/internal/templates"
)

type ServerConfig struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	WriteTimeout    time.Duration
}

type Server struct {
	svc         *contact.Service
	library     *templates.Library
	hub         *Hub
	schemas     *requestSchemas
	cfg         ServerConfig
	logger      *zap.Logger
	rateLimiter *rateLimiter
	now         func() time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
	// lastSweep bounds the entries map: one-off clients would otherwise
	// accumulate a permanent entry each.
	lastSweep time.Time
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(svc *contact.Service, library *templates.Library, hub *Hub, logger *zap.Logger) (*Server, error) {
	return NewServerWithConfig(svc, library, hub, logger, ServerConfig{})
}

func NewServerWithConfig(svc *contact.Service, library *templates.Library, hub *Hub, logger *zap.Logger, cfg ServerConfig) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	schemas, err := compileRequestSchemas()
	if err != nil {
		return nil, err
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		svc:         svc,
		library:     library,
		hub:         hub,
		schemas:     schemas,
		cfg:         cfg,
		logger:      logger,
		rateLimiter: limiter,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)

	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		s.handleHealth(w, r)
		return
	}

	if s.rateLimiter != nil {
		if !s.rateLimiter.allow(clientKey(r), s.now()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}

	switch parts[1] {
	case "templates":
		s.routeTemplates(w, r, parts, correlationID)
	case "contacts":
		s.routeContacts(w, r, parts, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) routeTemplates(w http.ResponseWriter, r *http.Request, parts []string, correlationID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", correlationID)
		return
	}
	switch len(parts) {
	case 2:
		s.handleListTemplates(w)
	case 3:
		s.handleTemplatesByGroup(w, parts[2])
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) routeContacts(w http.ResponseWriter, r *http.Request, parts []string, correlationID string) {
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		s.handleListContacts(w, r, correlationID)
	case len(parts) == 2 && r.Method == http.MethodPost:
		s.handleCreateContact(w, r, correlationID)
	case len(parts) == 3 && parts[2] == "watch" && r.Method == http.MethodGet:
		s.handleWatch(w, r)
	case len(parts) == 3 && r.Method == http.MethodGet:
		s.handleGetContact(w, r, parts[2], correlationID)
	case len(parts) == 3 && r.Method == http.MethodPatch:
		s.handleUpdateContact(w, r, parts[2], correlationID)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		s.handleArchiveContact(w, r, parts[2], correlationID)
	case len(parts) == 4 && parts[3] == "interactions" && r.Method == http.MethodGet:
		s.handleListInteractions(w, r, parts[2], correlationID)
	case len(parts) == 5 && parts[3] == "events" && r.Method == http.MethodPost:
		s.routeContactEvent(w, r, parts[2], parts[4], correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) routeContactEvent(w http.ResponseWriter, r *http.Request, id, event, correlationID string) {
	switch event {
	case "outreach-sent":
		s.handleOutreachSent(w, r, id, correlationID)
	case "meeting-scheduled":
		s.handleMeetingScheduled(w, r, id, correlationID)
	case "call-logged":
		s.handleCallLogged(w, r, id, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "unhealthy",
			"directoryConnected": false,
			"error":              err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"directoryConnected": true,
	})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request, correlationID string) {
	query, err := parseListQuery(r)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	result, err := s.svc.ListContacts(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	today := s.now()
	resp := listResponse{
		Contacts: make([]contactResponse, 0, len(result.Contacts)),
		Stale:    result.Stale,
		Warnings: result.Warnings,
	}
	if !result.RefreshedAt.IsZero() {
		resp.RefreshedAt = result.RefreshedAt.UTC().Format(time.RFC3339)
	}
	for _, c := range result.Contacts {
		resp.Contacts = append(resp.Contacts, toContactResponse(c, today))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request) (contact.ListQuery, error) {
	q := r.URL.Query()
	var query contact.ListQuery

	for _, raw := range splitParam(q.Get("status")) {
		status := contact.Status(raw)
		if !status.Valid() {
			return contact.ListQuery{}, &contact.ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(raw)}
		}
		query.Criteria.Statuses = append(query.Criteria.Statuses, status)
	}
	for _, raw := range splitParam(q.Get("type")) {
		t := contact.Type(raw)
		if !t.Valid() {
			return contact.ListQuery{}, &contact.ValidationError{Field: "type", Reason: "unknown type " + strconv.Quote(raw)}
		}
		query.Criteria.Types = append(query.Criteria.Types, t)
	}
	for _, raw := range splitParam(q.Get("group")) {
		g := contact.Group(raw)
		if !g.Valid() {
			return contact.ListQuery{}, &contact.ValidationError{Field: "group", Reason: "unknown group " + strconv.Quote(raw)}
		}
		query.Criteria.Groups = append(query.Criteria.Groups, g)
	}
	for _, raw := range splitParam(q.Get("relationshipType")) {
		rel := contact.RelationshipType(raw)
		if !rel.Valid() {
			return contact.ListQuery{}, &contact.ValidationError{Field: "relationshipType", Reason: "unknown relationship type " + strconv.Quote(raw)}
		}
		query.Criteria.RelationshipTypes = append(query.Criteria.RelationshipTypes, rel)
	}
	if raw := strings.TrimSpace(q.Get("minDaysSinceContact")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return contact.ListQuery{}, &contact.ValidationError{Field: "minDaysSinceContact", Reason: "expected a non-negative integer"}
		}
		query.Criteria.MinDaysSinceContact = &n
	}
	query.Criteria.IncludeArchived = q.Get("includeArchived") == "true"
	query.Search = q.Get("search")
	if raw := strings.TrimSpace(q.Get("sortBy")); raw != "" {
		key := contact.SortKey(raw)
		if !key.Valid() {
			return contact.ListQuery{}, &contact.ValidationError{Field: "sortBy", Reason: "unknown sort key " + strconv.Quote(raw)}
		}
		query.SortKey = key
	}
	switch q.Get("sortOrder") {
	case "", "asc":
	case "desc":
		query.Descending = true
	default:
		return contact.ListQuery{}, &contact.ValidationError{Field: "sortOrder", Reason: "expected asc or desc"}
	}
	query.Refresh = q.Get("refresh") == "true"
	return query, nil
}

func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if err := validateAgainst(s.schemas.create, body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
		return
	}
	var req createContactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return
	}
	input, err := req.toInput()
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	created, err := s.svc.CreateContact(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, toContactResponse(created, s.now()))
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	c, err := s.svc.GetContact(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c, s.now()))
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if err := validateAgainst(s.schemas.update, body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
		return
	}
	var req updateContactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	result, err := s.svc.UpdateContact(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	resp := updateResponse{
		Contact:          toContactResponse(result.Contact, s.now()),
		OverriddenFields: result.Overridden,
	}
	for _, field := range result.Overridden {
		resp.Warnings = append(resp.Warnings,
			"field "+field+" was changed remotely; the newer remote value was kept")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArchiveContact(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	var req archiveRequest
	if len(body) > 0 {
		if err := validateAgainst(s.schemas.archive, body); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
			return
		}
	}
	if err := s.svc.ArchiveContact(r.Context(), id, req.Reason); err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOutreachSent(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	if err := validateAgainst(s.schemas.outreachSent, body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
		return
	}
	var req outreachSentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return
	}
	c, err := s.svc.OnOutreachSent(r.Context(), id, req.Channel)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c, s.now()))
}

func (s *Server) handleMeetingScheduled(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	var req meetingScheduledRequest
	if len(body) > 0 {
		if err := validateAgainst(s.schemas.meetingScheduled, body); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
			return
		}
	}
	when, err := parseDateField("when", req.When)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	c, err := s.svc.OnMeetingScheduled(r.Context(), id, when, req.Payload)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c, s.now()))
}

func (s *Server) handleCallLogged(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	c, err := s.svc.OnCallLogged(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c, s.now()))
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	interactions, err := s.svc.ListInteractions(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	out := make([]interactionResponse, 0, len(interactions))
	for _, it := range interactions {
		out = append(out, toInteractionResponse(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
}

func (s *Server) handleListTemplates(w http.ResponseWriter) {
	if s.library == nil {
		writeJSON(w, http.StatusOK, map[string]any{"templates": []templates.Template{}})
		return
	}
	ts := s.library.All()
	if ts == nil {
		ts = []templates.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": ts})
}

func (s *Server) handleTemplatesByGroup(w http.ResponseWriter, group string) {
	ts := []templates.Template{}
	if s.library != nil {
		ts = s.library.ByGroup(group)
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": ts})
}

// writeServiceError maps the error kind to a stable status and code so
// callers can branch on the response without parsing messages.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, contact.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), correlationID)
	case errors.Is(err, contact.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "contact not found", correlationID)
	case errors.Is(err, contact.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", err.Error(), correlationID)
	case errors.Is(err, contact.ErrDirectoryUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "directory_unavailable", err.Error(), correlationID)
	case errors.Is(err, contact.ErrSchemaMismatch):
		writeError(w, http.StatusBadGateway, "schema_mismatch", err.Error(), correlationID)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func getCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func clientKey(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		for k, e := range l.entries {
			if now.After(e.resetAt) {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}
