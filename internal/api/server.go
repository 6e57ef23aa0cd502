package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.io/infrasutra/inboxsweep/internal/pagination"
	"github.io/infrasutra/inboxsweep/internal/parser"
	"github.io/infrasutra/inboxsweep/internal/pipeline"
	"github.io/infrasutra/inboxsweep/internal/sample"
	"github.io/infrasutra/inboxsweep/internal/sse"
	"github.io/infrasutra/inboxsweep/internal/status"
	"github.io/infrasutra/inboxsweep/internal/store"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

const maxImportBytes = 10 << 20

// Runner runs the extraction pipeline over one text blob.
type Runner interface {
	Run(ctx context.Context, text string) pipeline.Result
}

type Server struct {
	store     *store.Store
	runner    Runner
	scheduler *status.Scheduler
	hub       *sse.Hub
	logger    *slog.Logger
	mux       *http.ServeMux
	now       func() time.Time
}

func NewServer(st *store.Store, runner Runner, scheduler *status.Scheduler, hub *sse.Hub, logger *slog.Logger) *Server {
	server := &Server{
		store:     st,
		runner:    runner,
		scheduler: scheduler,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/imports", server.handleImports)
	mux.HandleFunc("/api/imports/latest", server.handleLatestImport)
	mux.HandleFunc("/api/sample", server.handleSample)
	mux.HandleFunc("/api/subscriptions", server.handleSubscriptions)
	mux.HandleFunc("/api/subscriptions/", server.handleSubscription)
	mux.HandleFunc("/api/summary", server.handleSummary)
	mux.HandleFunc("/api/inbox", server.handleInbox)
	mux.HandleFunc("/api/inbox/process", server.handleInboxProcess)
	mux.HandleFunc("/api/stream", server.handleStream)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") {
		s.mux.ServeHTTP(w, r)
		return
	}
	switch path {
	case "/health":
		s.handleHealth(w, r)
	case "/ready":
		s.handleReady(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImportBytes)).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	response, err := s.runImport(r.Context(), "paste", payload.Text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("import", "error", err)
		http.Error(w, "unable to save import", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusCreated, response)
}

// runImport runs the pipeline over text and stores the import with its
// subscriptions.
func (s *Server) runImport(ctx context.Context, source, text string) (importResponse, error) {
	result := s.runner.Run(ctx, text)
	imp := store.Import{
		ID:                uuid.NewString(),
		Source:            source,
		RawText:           text,
		Path:              string(result.Path),
		CreatedAt:         s.now(),
		SubscriptionCount: len(result.Subscriptions),
	}
	if err := s.store.InsertImport(ctx, imp, result.Subscriptions); err != nil {
		return importResponse{}, err
	}
	s.logger.Info("import stored",
		"id", imp.ID,
		"source", source,
		"path", result.Path,
		"subscriptions", len(result.Subscriptions),
	)

	response := importResponse{
		Import:        toImportView(imp, false),
		Path:          string(result.Path),
		Subscriptions: result.Subscriptions,
	}
	if result.AIError != nil {
		response.AIError = result.AIError.Error()
	}
	if err := s.hub.Publish(sse.EventImport, response.Import); err != nil {
		s.logger.Warn("publish import event", "error", err)
	}
	return response, nil
}

func (s *Server) handleLatestImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	imp, err := s.store.LatestImport(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no import yet", http.StatusNotFound)
			return
		}
		s.logger.Error("latest import", "error", err)
		http.Error(w, "unable to load import", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, toImportView(imp, true))
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"text": sample.Text()})
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	params := pagination.FromQuery(q)
	statusFilter := subscription.Status(strings.TrimSpace(q.Get("status")))
	if statusFilter != "" && !statusFilter.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	response := subscriptionListResponse{
		Subscriptions: []subscriptionSummary{},
		Page:          params.Page,
		Limit:         params.Limit,
		TotalPages:    1,
	}

	imp, ok := s.latestImport(w, r)
	if !ok {
		return
	}
	if imp.ID == "" {
		s.respondJSON(w, http.StatusOK, response)
		return
	}

	subs, total, err := s.store.ListSubscriptions(r.Context(), store.SubscriptionFilter{
		ImportID: imp.ID,
		Status:   statusFilter,
		Search:   q.Get("search"),
		Sort:     params.Sort,
	}, params.Offset, params.Limit)
	if err != nil {
		s.logger.Error("list subscriptions", "error", err)
		http.Error(w, "unable to list subscriptions", http.StatusInternalServerError)
		return
	}

	response.ImportID = imp.ID
	response.Total = total
	response.TotalPages = pagination.TotalPages(params.Limit, total)
	response.HasNext = pagination.HasNext(params.Offset, params.Limit, total)
	for _, sub := range subs {
		response.Subscriptions = append(response.Subscriptions, toSubscriptionSummary(sub))
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 && parts[0] == "unsubscribe" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleBulkUnsubscribe(w, r)
		return
	}

	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleSubscriptionDetail(w, r, id)
		return
	}

	if len(parts) == 2 && parts[1] == "unsubscribe" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleUnsubscribe(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleSubscriptionDetail(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := s.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get subscription", "id", id, "error", err)
		http.Error(w, "unable to load subscription", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.store.GetSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get subscription", "id", id, "error", err)
		http.Error(w, "unable to load subscription", http.StatusInternalServerError)
		return
	}

	if err := s.scheduler.Unsubscribe(r.Context(), id); err != nil {
		if errors.Is(err, status.ErrInvalidTransition) {
			http.Error(w, "subscription is not active", http.StatusConflict)
			return
		}
		s.logger.Error("unsubscribe", "id", id, "error", err)
		http.Error(w, "unable to unsubscribe", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusAccepted, status.Change{ID: id, Status: subscription.StatusPending})
}

func (s *Server) handleBulkUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	ids := payload.IDs
	if len(ids) == 0 {
		imp, ok := s.latestImport(w, r)
		if !ok {
			return
		}
		if imp.ID != "" {
			active, err := s.store.SubscriptionIDs(r.Context(), imp.ID, subscription.StatusActive)
			if err != nil {
				s.logger.Error("list active subscriptions", "error", err)
				http.Error(w, "unable to unsubscribe", http.StatusInternalServerError)
				return
			}
			ids = active
		}
	}

	changed, err := s.scheduler.UnsubscribeAll(r.Context(), ids)
	if err != nil {
		s.logger.Error("bulk unsubscribe", "error", err)
		http.Error(w, "unable to unsubscribe", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{"ids": changed, "count": len(changed)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	imp, ok := s.latestImport(w, r)
	if !ok {
		return
	}
	var summary store.Summary
	if imp.ID != "" {
		var err error
		summary, err = s.store.Summary(r.Context(), imp.ID)
		if err != nil {
			s.logger.Error("summary", "error", err)
			http.Error(w, "unable to load summary", http.StatusInternalServerError)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, summaryView{
		ImportID:      imp.ID,
		Subscriptions: summary.Subscriptions,
		Active:        summary.Active,
		Pending:       summary.Pending,
		Unsubscribed:  summary.Unsubscribed,
		EmailsCleaned: summary.EmailsCleaned,
	})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		messages, err := s.store.ListInboxMessages(r.Context())
		if err != nil {
			s.logger.Error("list inbox", "error", err)
			http.Error(w, "unable to list inbox", http.StatusInternalServerError)
			return
		}
		views := make([]inboxMessageView, 0, len(messages))
		for _, message := range messages {
			views = append(views, toInboxMessageView(message))
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"messages": views})
	case http.MethodDelete:
		if _, err := s.store.ClearInbox(r.Context()); err != nil {
			s.logger.Error("clear inbox", "error", err)
			http.Error(w, "unable to clear inbox", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleInboxProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	messages, err := s.store.ListInboxMessages(r.Context())
	if err != nil {
		s.logger.Error("list inbox", "error", err)
		http.Error(w, "unable to list inbox", http.StatusInternalServerError)
		return
	}
	sections := make([]string, 0, len(messages))
	for _, message := range messages {
		sections = append(sections, message.Section)
	}
	text := parser.Join(sections)
	if strings.TrimSpace(text) == "" {
		http.Error(w, "inbox is empty", http.StatusBadRequest)
		return
	}

	response, err := s.runImport(r.Context(), "inbox", text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("process inbox", "error", err)
		http.Error(w, "unable to save import", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusCreated, response)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	topics := streamTopics(r.URL.Query().Get("topics"))
	if len(topics) == 0 {
		http.Error(w, "invalid topics", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(topics...)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

// streamTopics parses a comma separated topic list. Empty means every topic;
// unknown names are dropped.
func streamTopics(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return sse.Topics
	}
	var topics []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		for _, known := range sse.Topics {
			if name == known {
				topics = append(topics, name)
				break
			}
		}
	}
	return topics
}

// latestImport loads the newest import. A zero Import means none exists yet;
// false means an error response was written.
func (s *Server) latestImport(w http.ResponseWriter, r *http.Request) (store.Import, bool) {
	imp, err := s.store.LatestImport(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Import{}, true
		}
		s.logger.Error("latest import", "error", err)
		http.Error(w, "unable to load import", http.StatusInternalServerError)
		return store.Import{}, false
	}
	return imp, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondText(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.respondText(w, http.StatusOK, "ready")
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
