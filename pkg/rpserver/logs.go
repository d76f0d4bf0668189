package rpserver

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/logs"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
)

func (s *Server) logRoutes(r *mux.Router) {
	r.HandleFunc("/log", s.inProject(s.jsonListLogs)).Methods(http.MethodGet)
	r.HandleFunc("/log/search", s.inProject(s.jsonSearchLogs)).Methods(http.MethodGet)
	r.HandleFunc("/log/{id}", s.inProject(s.jsonGetLog)).Methods(http.MethodGet)
	r.HandleFunc("/log/{id:[0-9]+}", s.inProject(s.jsonDeleteLog)).Methods(http.MethodDelete)
	r.HandleFunc("/data/{fileID}", s.inProject(s.getAttachment)).Methods(http.MethodGet)
}

func (s *Server) jsonListLogs(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := logs.ListLogs(s.db.DB.WithContext(req.Context()), project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonGetLog(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	rs, err := logs.GetLog(s.db.DB.WithContext(req.Context()), project, mux.Vars(req)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteLog(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Logs.DeleteLog(req.Context(), user, project, id); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Log with ID = '" + mux.Vars(req)["id"] + "' successfully deleted.",
	})
}

// jsonSearchLogs serves ?term=&launchIds=, a full text search over the indexed messages.
func (s *Server) jsonSearchLogs(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var launchIDs []uint
	if q := req.URL.Query().Get("launchIds"); q != "" {
		ids, err := api.ParseIDs(q)
		if err != nil {
			failureResponse(w, err)
			return
		}
		launchIDs = ids
	}
	found, err := s.Logs.SearchLogs(req.Context(), project, req.URL.Query().Get("term"), launchIDs)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, found)
}

// getAttachment streams stored binary content.
func (s *Server) getAttachment(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	attachment, err := s.Logs.LoadAttachment(req.Context(), project, mux.Vars(req)["fileID"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	defer attachment.Content.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if attachment.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, attachment.Content); err != nil {
		log.WithError(err).WithField("file", mux.Vars(req)["fileID"]).Warning("streaming attachment interrupted")
	}
}
