package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/projects"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
)

func (s *Server) projectRoutes(r *mux.Router) {
	r.HandleFunc("/project", asUser(s.jsonCreateProject)).Methods(http.MethodPost)
	r.HandleFunc("/project/list", asUser(s.jsonListProjects)).Methods(http.MethodGet)
	r.HandleFunc("/project/{id:[0-9]+}", asUser(s.jsonDeleteProject)).Methods(http.MethodDelete)
	r.HandleFunc("/project/{projectName}", s.inProject(s.jsonGetProject)).Methods(http.MethodGet)
	r.HandleFunc("/project/{projectName}", s.inProject(s.jsonUpdateProject)).Methods(http.MethodPut)
	r.HandleFunc("/project/{projectName}/assign", s.inProject(s.jsonAssignUsers)).Methods(http.MethodPut)
	r.HandleFunc("/project/{projectName}/unassign", s.inProject(s.jsonUnassignUsers)).Methods(http.MethodPut)
	r.HandleFunc("/project/{projectName}/info", s.inProject(s.jsonProjectInfo)).Methods(http.MethodGet)
	r.HandleFunc("/project/{projectName}/notification", s.inProject(s.jsonUpdateNotifications)).Methods(http.MethodPut)
	r.HandleFunc("/project/{projectName}/settings/sub-type", s.inProject(s.jsonCreateSubType)).Methods(http.MethodPost)
	r.HandleFunc("/project/{projectName}/settings/sub-type", s.inProject(s.jsonUpdateSubTypes)).Methods(http.MethodPut)
	r.HandleFunc("/project/{projectName}/settings/sub-type/{id:[0-9]+}", s.inProject(s.jsonDeleteSubType)).Methods(http.MethodDelete)
}

func (s *Server) jsonCreateProject(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	var rq apitype.CreateProjectRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.CreateProject(req.Context(), user, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonListProjects(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	page, err := projects.ListProjects(s.db.DB.WithContext(req.Context()), user, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonDeleteProject(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.DeleteProject(req.Context(), user, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonGetProject(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	rs, err := projects.GetProject(s.db.DB.WithContext(req.Context()), project.Name)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonUpdateProject(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.UpdateProjectRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Projects.UpdateProject(req.Context(), user, project, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Project with name = '" + project.Name + "' is successfully updated.",
	})
}

func (s *Server) jsonAssignUsers(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.AssignUsersRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.AssignUsers(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonUnassignUsers(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.UnassignUsersRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.UnassignUsers(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonProjectInfo(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	rs, err := projects.ProjectInfo(s.db.DB.WithContext(req.Context()), project)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonUpdateNotifications(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.ProjectNotificationConfig
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Notifications.UpdateConfig(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateSubType(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.CreateIssueSubTypeRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.CreateSubType(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonUpdateSubTypes(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.UpdateIssueSubTypeRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.UpdateSubTypes(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteSubType(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Projects.DeleteSubType(req.Context(), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}
