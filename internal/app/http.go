package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"draftwise/api/internal/annotation"
	"draftwise/api/internal/auth"
	"draftwise/api/internal/editor"
	"draftwise/api/internal/metrics"
	"draftwise/api/internal/rbac"
	"draftwise/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(body.Name, body.Role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userName":  session.UserName,
			"userId":    session.UserID,
			"role":      session.Role,
			"expiresAt": session.ExpiresAt,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID, "role": session.Role})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	parts := splitPath(r.URL.Path)

	if r.URL.Path == "/api/documents" {
		s.handleDocumentCollection(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, session)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocument(w, r, session, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"redis":    map[string]any{"status": "ok"},
	}
	probes := map[string]func(context.Context) error{
		"database": s.service.Ping,
		"redis":    s.service.PingSessions,
	}
	for name, probe := range probes {
		if err := probe(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleDocumentCollection(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method == http.MethodGet {
		ownerID := ""
		if r.URL.Query().Get("mine") == "1" {
			ownerID = session.UserID
		}
		documents, err := s.service.ListDocuments(r.Context(), ownerID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
		return
	}

	if r.Method == http.MethodPost {
		if !s.service.Can(session.Role, rbac.OpCreate) {
			s.forbid(w)
			return
		}
		var body CreateDocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateDocument(r.Context(), session, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": created})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	q := search.Query{
		Text:   strings.TrimSpace(query.Get("q")),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	if query.Get("mine") == "1" {
		q.OwnerID = session.UserID
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

// handleDocument serves /api/documents/{id}/...; rest holds the segments
// after the id.
func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, session Session, documentID string, rest []string) {
	route := strings.Join(rest, "/")
	switch {
	case route == "" && r.Method == http.MethodGet:
		s.respond(w, http.StatusOK)(s.service.State(documentID))

	case route == "" && r.Method == http.MethodDelete:
		if !s.service.Can(session.Role, rbac.OpDelete) {
			s.forbid(w)
			return
		}
		if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case route == "open" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpOpen) {
			s.forbid(w)
			return
		}
		s.respond(w, http.StatusOK)(s.service.OpenDocument(r.Context(), session, documentID))

	case route == "close" && r.Method == http.MethodPost:
		s.respond(w, http.StatusOK)(s.service.CloseDocument(r.Context(), session, documentID))

	case route == "stream" && r.Method == http.MethodGet:
		s.handleStream(w, r, documentID)

	case route == "content" && r.Method == http.MethodPut:
		if !s.service.Can(session.Role, rbac.OpEdit) {
			s.forbid(w)
			return
		}
		var body struct {
			Content *string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Content == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
			return
		}
		s.respond(w, http.StatusOK)(s.service.ApplyUserEdit(r.Context(), session, documentID, *body.Content))

	case route == "dictation" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpDictate) {
			s.forbid(w)
			return
		}
		var body struct {
			At   int    `json:"at"`
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK)(s.service.Dictate(r.Context(), session, documentID, body.At, body.Text))

	case route == "import" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpImport) {
			s.forbid(w)
			return
		}
		var body struct {
			HTML string `json:"html"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK)(s.service.ImportHTML(r.Context(), session, documentID, body.HTML))

	case route == "save" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpSave) {
			s.forbid(w)
			return
		}
		s.respond(w, http.StatusOK)(s.service.Save(r.Context(), session, documentID))

	case route == "annotations" && r.Method == http.MethodGet:
		kinds := make([]annotation.Kind, 0)
		for _, kind := range r.URL.Query()["kind"] {
			kinds = append(kinds, annotation.Kind(kind))
		}
		items, err := s.service.ListAnnotations(documentID, r.URL.Query().Get("all") == "1", kinds)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotations": items})

	case route == "suggestions" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpSuggest) {
			s.forbid(w)
			return
		}
		var body struct {
			Suggestions []editor.SuggestionPayload `json:"suggestions"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		added, err := s.service.AddSuggestions(documentID, body.Suggestions)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"annotations": added})

	case len(rest) == 3 && rest[0] == "suggestions" && rest[2] == "apply" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpApply) {
			s.forbid(w)
			return
		}
		s.respond(w, http.StatusOK)(s.service.ApplySuggestion(r.Context(), session, documentID, rest[1]))

	case len(rest) == 3 && rest[0] == "annotations" && rest[2] == "dismiss" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpDismiss) {
			s.forbid(w)
			return
		}
		s.respond(w, http.StatusOK)(s.service.Dismiss(documentID, rest[1]))

	case route == "comments" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpComment) {
			s.forbid(w)
			return
		}
		var body struct {
			Range annotation.Range `json:"range"`
			Body  string           `json:"body"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.AddComment(session, documentID, body.Range, body.Body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"annotation": created})

	case len(rest) == 3 && rest[0] == "comments" && rest[2] == "resolve" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.OpResolve) {
			s.forbid(w)
			return
		}
		s.respond(w, http.StatusOK)(s.service.ResolveComment(documentID, rest[1]))

	case route == "analysis" && r.Method == http.MethodGet:
		s.respond(w, http.StatusOK)(s.service.Analysis(documentID))

	case route == "keywords" && r.Method == http.MethodGet:
		s.respond(w, http.StatusOK)(s.service.Keywords(documentID, queryInt(r, "limit", metrics.DefaultKeywordLimit)))

	case route == "history" && r.Method == http.MethodGet:
		s.respond(w, http.StatusOK)(s.service.History(r.Context(), documentID, queryInt(r, "limit", 50)))

	case len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet:
		version, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || version <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
			return
		}
		s.respond(w, http.StatusOK)(s.service.Version(r.Context(), documentID, version))

	case len(rest) == 2 && rest[0] == "revisions" && r.Method == http.MethodGet:
		s.respond(w, http.StatusOK)(s.service.Revision(documentID, rest[1]))

	case route == "compare" && r.Method == http.MethodGet:
		from := int64(queryInt(r, "from", 0))
		to := int64(queryInt(r, "to", 0))
		if from <= 0 || to <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to versions are required", nil)
			return
		}
		s.respond(w, http.StatusOK)(s.service.Compare(documentID, from, to))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// respond returns a writer for a (payload, error) result pair.
func (s *HTTPServer) respond(w http.ResponseWriter, status int) func(any, error) {
	return func(payload any, err error) {
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, status, payload)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: %s: %v", code, err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) forbid(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		// Browsers cannot set headers on websocket handshakes.
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
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

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
