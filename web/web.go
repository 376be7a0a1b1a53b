// Package web serves the JSON API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/monahq/mona/web/auth"
	"github.com/monahq/mona/web/handlers"
	"github.com/monahq/mona/web/middleware"
)

type Config struct {
	Addr           string
	AllowedOrigin  string
	AuthMiddleware *auth.Middleware
	Deps           handlers.Dependencies
}

// Server is the HTTP front of the service.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func New(cfg Config) *Server {
	group := handlers.NewHandlerGroup(cfg.Deps)
	logger := cfg.Deps.Logger

	router := mux.NewRouter()

	router.HandleFunc("/health", group.Health.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(cfg.AuthMiddleware.Authenticate)

	api.HandleFunc("/providers", group.Integration.ListProviders).Methods(http.MethodGet)
	api.HandleFunc("/integrations", group.Integration.List).Methods(http.MethodGet)
	api.HandleFunc("/integrations/{provider}/connect", group.Integration.Connect).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{provider}/complete", group.Integration.Complete).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{id}/sync", group.Integration.Sync).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{id}/disconnect", group.Integration.Disconnect).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{id}/sync-enabled", group.Integration.SetSyncEnabled).Methods(http.MethodPut)
	api.HandleFunc("/integrations/{id}", group.Integration.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/sync-runs", group.Resources.ListSyncRuns).Methods(http.MethodGet)
	api.HandleFunc("/sync-runs/{id}", group.Resources.GetSyncRun).Methods(http.MethodGet)
	api.HandleFunc("/calendar/events", group.Resources.ListCalendarEvents).Methods(http.MethodGet)
	api.HandleFunc("/calendar/events/{id}", group.Resources.GetCalendarEvent).Methods(http.MethodGet)
	api.HandleFunc("/emails", group.Resources.ListEmails).Methods(http.MethodGet)
	api.HandleFunc("/emails/{id}", group.Resources.GetEmail).Methods(http.MethodGet)

	api.HandleFunc("/github/{id}/repos", group.GitHub.ListRepos).Methods(http.MethodGet)
	api.HandleFunc("/github/{id}/repos", group.GitHub.CreateRepo).Methods(http.MethodPost)
	api.HandleFunc("/github/{id}/repos/{owner}/{name}", group.GitHub.GetRepo).Methods(http.MethodGet)
	api.HandleFunc("/github/{id}/repos/{owner}/{name}", group.GitHub.UpdateRepo).Methods(http.MethodPatch)
	api.HandleFunc("/github/{id}/repos/{owner}/{name}", group.GitHub.DeleteRepo).Methods(http.MethodDelete)
	api.HandleFunc("/github/{id}/repos/{owner}/{name}/branches", group.GitHub.ListBranches).Methods(http.MethodGet)
	api.HandleFunc("/github/{id}/repos/{owner}/{name}/commits", group.GitHub.ListCommits).Methods(http.MethodGet)

	api.HandleFunc("/chat", group.Chat.Chat).Methods(http.MethodPost)

	handler := middleware.Chain(router,
		middleware.Recover(logger),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.AllowedOrigin),
	)

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
	}
}

// Handler exposes the routed handler stack.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err := <-errc
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
