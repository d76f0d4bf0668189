package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	metricsmiddleware "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/rperrors"
)

var httpMetrics = metricsmiddleware.New(metricsmiddleware.Config{
	Recorder: metricsprom.NewRecorder(metricsprom.Config{Prefix: "reportportal"}),
})

// metricsMiddleware records request metrics labelled by route template, so paths holding
// ids do not create a series each.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handlerID := "unmatched"
		if route := mux.CurrentRoute(req); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				handlerID = tpl
			}
		}
		std.Handler(handlerID, httpMetrics, next).ServeHTTP(w, req)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, err := s.authenticator.Authenticate(req)
		if err != nil {
			failureResponse(w, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(auth.WithUser(req.Context(), user)))
	})
}

type userHandlerFunc func(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser)

type projectHandlerFunc func(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails)

// asUser hands the authenticated caller to h.
func asUser(h userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		user := auth.UserFromContext(req.Context())
		if user == nil {
			failureResponse(w, rperrors.New(rperrors.Unauthorized, ""))
			return
		}
		h(w, req, user)
	}
}

// inProject resolves the caller's membership in the project named by the path.
func (s *Server) inProject(h projectHandlerFunc) http.HandlerFunc {
	return asUser(func(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
		project, err := auth.ProjectDetailsFor(s.db, user, mux.Vars(req)["projectName"])
		if err != nil {
			failureResponse(w, err)
			return
		}
		h(w, req, user, project)
	})
}

func failureResponse(w http.ResponseWriter, err error) {
	if rperrors.StatusOf(err) >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	api.RespondWithError(w, err)
}

func errNotFound(req *http.Request) error {
	return rperrors.New(rperrors.NotFound, req.URL.Path)
}

// pathID reads a numeric path variable.
func pathID(req *http.Request, name string) (uint, error) {
	return api.ParseID(mux.Vars(req)[name])
}
