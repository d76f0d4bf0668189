package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/bts"
)

func (s *Server) integrationRoutes(r *mux.Router) {
	r.HandleFunc("/integration", s.inProject(s.jsonListIntegrations)).Methods(http.MethodGet)
	r.HandleFunc("/integration/{id:[0-9]+}", s.inProject(s.jsonGetIntegration)).Methods(http.MethodGet)
	r.HandleFunc("/integration/{id:[0-9]+}", s.inProject(s.jsonUpdateIntegration)).Methods(http.MethodPut)
	r.HandleFunc("/integration/{id:[0-9]+}", s.inProject(s.jsonDeleteIntegration)).Methods(http.MethodDelete)
	r.HandleFunc("/integration/{id:[0-9]+}/connection/test", s.inProject(s.jsonTestConnection)).Methods(http.MethodGet)
	r.HandleFunc("/integration/{id:[0-9]+}/issuetypes", s.inProject(s.jsonIssueTypes)).Methods(http.MethodGet)
	r.HandleFunc("/integration/{type}", s.inProject(s.jsonCreateIntegration)).Methods(http.MethodPost)
	r.HandleFunc("/bts/{id:[0-9]+}/ticket", s.inProject(s.jsonPostTicket)).Methods(http.MethodPost)
	r.HandleFunc("/bts/{id:[0-9]+}/ticket/{key}", s.inProject(s.jsonGetTicket)).Methods(http.MethodGet)
}

func (s *Server) jsonListIntegrations(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	rs, err := bts.ListIntegrations(s.db.DB.WithContext(req.Context()), project)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonGetIntegration(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := bts.GetIntegration(s.db.DB.WithContext(req.Context()), project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateIntegration(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.IntegrationRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Integrations.CreateIntegration(req.Context(), user, project, mux.Vars(req)["type"], rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonUpdateIntegration(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.IntegrationRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Integrations.UpdateIntegration(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteIntegration(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Integrations.DeleteIntegration(req.Context(), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonTestConnection(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Integrations.TestConnection(req.Context(), project, id); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{Message: "Connection is successful."})
}

func (s *Server) jsonIssueTypes(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	types, err := s.Integrations.IssueTypes(req.Context(), project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, types)
}

func (s *Server) jsonPostTicket(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.PostTicketRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	ticket, err := s.Integrations.PostTicket(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, ticket)
}

func (s *Server) jsonGetTicket(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	ticket, err := s.Integrations.GetTicket(req.Context(), project, id, mux.Vars(req)["key"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, ticket)
}
