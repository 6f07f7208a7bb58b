package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/activity"
	"github.com/coldreach/coldreach/internal/model"
	"github.com/coldreach/coldreach/internal/monitoring"
	"github.com/coldreach/coldreach/internal/pipeline"
	"github.com/coldreach/coldreach/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outreach HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		collector := monitoring.NewCollector(env.Log)
		api := &apiServer{
			runner:   env.Pipeline,
			sessions: env.Store,
			log:      env.Log,
			profiles: env.Profiles,
			health:   env.Store,
			metrics:  collector,
			lookback: cfg.Monitor.LookbackWindowHours,
			timeout:  defaultRequestTimeout,
		}
		if cfg.Monitor.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
			go checker.Run(ctx)
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type outreachRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type sessionReader interface {
	GetSession(ctx context.Context, id string) (*model.OutreachSession, error)
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.OutreachSession, error)
}

type logAggregator interface {
	Aggregate(ctx context.Context, filter store.LogFilter, by activity.GroupBy) ([]activity.Group, error)
}

type profileManager interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	Invalidate(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error
}

type metricsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.Snapshot, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// apiServer serves the HTTP API over the pipeline and the store.
type apiServer struct {
	runner   outreachRunner
	sessions sessionReader
	log      logAggregator
	profiles profileManager
	health   pinger
	metrics  metricsCollector
	lookback int
	timeout  time.Duration
}

func (s *apiServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/outreach", s.handleOutreach)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/log/stats", s.handleLogStats)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/profiles/{user}", s.handleGetProfile)
		r.Post("/profiles/{user}/invalidate", s.handleInvalidateProfile)
		r.Delete("/profiles/{user}", s.handleDeleteProfile)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// maxOutreachBody caps an outreach request, resume included.
const maxOutreachBody = 10 << 20

type outreachRequest struct {
	UserID      string `json:"user_id"`
	CompanyURL  string `json:"company_url"`
	Resume      string `json:"resume,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	GitHubURL   string `json:"github_url,omitempty"`

	// ResumeBase64 carries a binary resume such as a PDF. It wins over
	// Resume when both are set.
	ResumeBase64 string `json:"resume_base64,omitempty"`

	resume []byte
}

// decodeOutreach reads a JSON body or a multipart form whose "resume" part
// is the resume file.
func decodeOutreach(w http.ResponseWriter, r *http.Request) (*outreachRequest, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOutreachBody)
	status := func(err error) int {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	}

	var req outreachRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxOutreachBody); err != nil {
			return nil, status(err), eris.Wrap(err, "invalid multipart body")
		}
		req.UserID = r.FormValue("user_id")
		req.CompanyURL = r.FormValue("company_url")
		req.LinkedInURL = r.FormValue("linkedin_url")
		req.GitHubURL = r.FormValue("github_url")
		f, _, err := r.FormFile("resume")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return nil, http.StatusBadRequest, eris.Wrap(err, "invalid resume part")
		default:
			defer f.Close() //nolint:errcheck
			if req.resume, err = io.ReadAll(f); err != nil {
				return nil, status(err), eris.Wrap(err, "read resume part")
			}
		}
		return &req, 0, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, status(err), eris.Wrap(err, "invalid request body")
	}
	switch {
	case req.ResumeBase64 != "":
		b, err := base64.StdEncoding.DecodeString(req.ResumeBase64)
		if err != nil {
			return nil, http.StatusBadRequest, eris.Wrap(err, "resume_base64 is not valid base64")
		}
		req.resume = b
	case req.Resume != "":
		req.resume = []byte(req.Resume)
	}
	return &req, 0, nil
}

// handleOutreach runs one session to completion. Domain outcomes, including
// rejected sessions, are 200s; the body says what happened.
func (s *apiServer) handleOutreach(w http.ResponseWriter, r *http.Request) {
	req, status, err := decodeOutreach(w, r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	if req.UserID == "" || req.CompanyURL == "" {
		respondError(w, http.StatusBadRequest, "user_id and company_url are required")
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	pr := pipeline.Request{
		UserID:     req.UserID,
		CompanyURL: req.CompanyURL,
		Sources: model.ProfileSources{
			LinkedInURL: req.LinkedInURL,
			GitHubURL:   req.GitHubURL,
		},
	}
	if len(req.resume) > 0 {
		pr.Sources.Resume = req.resume
	}

	res, err := s.runner.Run(ctx, pr)
	if res == nil {
		zap.L().Error("outreach run failed", zap.String("company", req.CompanyURL), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "outreach run failed")
		return
	}
	if err != nil {
		zap.L().Error("outreach outcome not recorded", zap.String("session_id", res.Session.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, newResultView(res, err))
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	sessions, err := s.sessions.ListSessions(r.Context(), store.SessionFilter{
		UserID:     q.Get("user_id"),
		CompanyURL: q.Get("company_url"),
		Outcome:    model.Outcome(q.Get("outcome")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		zap.L().Error("list sessions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	if sessions == nil {
		sessions = []model.OutreachSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if storeNotFound(err) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		zap.L().Error("get session", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "get session failed")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *apiServer) handleLogStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupBy := q.Get("group_by")
	if groupBy == "" {
		groupBy = string(activity.ByCompany)
	}
	by, err := activity.ParseGroupBy(groupBy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.LogFilter{UserID: q.Get("user_id"), CompanyURL: q.Get("company_url")}
	if since := q.Get("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "since must be a positive duration like 168h")
			return
		}
		filter.Since = time.Now().Add(-d)
	}

	groups, err := s.log.Aggregate(r.Context(), filter, by)
	if err != nil {
		zap.L().Error("log stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "log stats failed")
		return
	}
	if groups == nil {
		groups = []activity.Group{}
	}
	respondJSON(w, http.StatusOK, groups)
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	hours := s.lookback
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "hours must be a non-negative integer")
			return
		}
		hours = n
	}
	snap, err := s.metrics.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect metrics", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "collect metrics failed")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		zap.L().Error("get profile", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "get profile failed")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *apiServer) handleInvalidateProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Invalidate(r.Context(), chi.URLParam(r, "user")); err != nil {
		zap.L().Error("invalidate profile", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "invalidate profile failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(r.Context(), chi.URLParam(r, "user")); err != nil {
		zap.L().Error("delete profile", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "delete profile failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
