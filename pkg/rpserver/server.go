// Package rpserver routes the REST API to the domain managers.
package rpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/reportportal/service-api/pkg/analyzer"
	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/dashboards"
	"github.com/reportportal/service-api/pkg/api/filters"
	"github.com/reportportal/service-api/pkg/api/items"
	"github.com/reportportal/service-api/pkg/api/launches"
	"github.com/reportportal/service-api/pkg/api/logs"
	"github.com/reportportal/service-api/pkg/api/projects"
	"github.com/reportportal/service-api/pkg/api/users"
	"github.com/reportportal/service-api/pkg/api/widgets"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/bts"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/importer"
	"github.com/reportportal/service-api/pkg/messaging"
	"github.com/reportportal/service-api/pkg/notification"
	"github.com/reportportal/service-api/pkg/reporting"
)

const shutdownTimeout = 10 * time.Second

// AsyncPublisher queues reporting requests for the reporting consumers.
type AsyncPublisher interface {
	PublishRequest(ctx context.Context, t messaging.RequestType, headers messaging.Headers, body interface{}) error
}

// Managers are the domain services the API exposes. Publisher, Analyzer and Analyzers may
// be nil, the endpoints needing them then fail with UNABLE_INTERACT_WITH_INTEGRATION.
type Managers struct {
	Reporting     *reporting.Service
	Publisher     AsyncPublisher
	Launches      *launches.Manager
	Items         *items.Manager
	Logs          *logs.Manager
	Projects      *projects.Manager
	Users         *users.Manager
	Filters       *filters.Manager
	Dashboards    *dashboards.Manager
	Widgets       *widgets.Manager
	Integrations  *bts.Manager
	Notifications *notification.Manager
	Importer      *importer.Importer
	Analyzer      *analyzer.Service
	Analyzers     *analyzer.Client
}

func NewServer(listenAddr string, dbc *db.DB, authenticator *auth.Authenticator, managers Managers,
	uiBaseURL string, tokenTTL time.Duration, capabilities []string) *Server {
	return &Server{
		listenAddr:    listenAddr,
		db:            dbc,
		authenticator: authenticator,
		Managers:      managers,
		uiBaseURL:     uiBaseURL,
		tokenTTL:      tokenTTL,
		capabilities:  capabilities,
	}
}

type Server struct {
	Managers

	listenAddr    string
	db            *db.DB
	authenticator *auth.Authenticator
	uiBaseURL     string
	tokenTTL      time.Duration
	capabilities  []string
	httpServer    *http.Server
}

// baseURL is the address links in responses point to: the configured UI address when set,
// otherwise the address the request was sent to.
func (s *Server) baseURL(req *http.Request) string {
	if s.uiBaseURL != "" {
		return s.uiBaseURL
	}
	return api.GetBaseURL(req)
}

// Handler builds the router of the whole API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(metricsMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		failureResponse(w, errNotFound(req))
	})

	router.HandleFunc("/health", s.jsonHealth).Methods(http.MethodGet)
	router.HandleFunc("/info", s.jsonInfo).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/auth/token", s.jsonLogin).Methods(http.MethodPost)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)
	s.userRoutes(v1)
	s.projectRoutes(v1)

	project := v1.PathPrefix("/{projectName}").Subrouter()
	s.reportingRoutes(project)
	s.launchRoutes(project)
	s.itemRoutes(project)
	s.logRoutes(project)
	s.contentRoutes(project)
	s.integrationRoutes(project)

	v2 := router.PathPrefix("/api/v2/{projectName}").Subrouter()
	v2.Use(s.authMiddleware)
	s.asyncRoutes(v2)

	return router
}

// Serve listens until ctx is cancelled, then stops accepting requests and waits for running
// ones to complete.
func (s *Server) Serve(ctx context.Context) error {
	// Store a pointer to the HTTP server for later retrieval.
	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Serving API on %s", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "server exited")
	case <-ctx.Done():
	}

	log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down server")
	}
	return <-errs
}

func (s *Server) GetHTTPServer() *http.Server {
	return s.httpServer
}
