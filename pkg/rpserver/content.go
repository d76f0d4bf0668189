package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	"github.com/reportportal/service-api/pkg/api/dashboards"
	"github.com/reportportal/service-api/pkg/api/filters"
	"github.com/reportportal/service-api/pkg/api/widgets"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
)

// contentRoutes serve the shareable project content: filters, dashboards and widgets, plus
// the activity feed.
func (s *Server) contentRoutes(r *mux.Router) {
	r.HandleFunc("/filter", s.inProject(s.jsonListFilters)).Methods(http.MethodGet)
	r.HandleFunc("/filter", s.inProject(s.jsonCreateFilter)).Methods(http.MethodPost)
	r.HandleFunc("/filter/{id:[0-9]+}", s.inProject(s.jsonGetFilter)).Methods(http.MethodGet)
	r.HandleFunc("/filter/{id:[0-9]+}", s.inProject(s.jsonUpdateFilter)).Methods(http.MethodPut)
	r.HandleFunc("/filter/{id:[0-9]+}", s.inProject(s.jsonDeleteFilter)).Methods(http.MethodDelete)

	r.HandleFunc("/dashboard", s.inProject(s.jsonListDashboards)).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", s.inProject(s.jsonCreateDashboard)).Methods(http.MethodPost)
	r.HandleFunc("/dashboard/{id:[0-9]+}", s.inProject(s.jsonGetDashboard)).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/{id:[0-9]+}", s.inProject(s.jsonUpdateDashboard)).Methods(http.MethodPut)
	r.HandleFunc("/dashboard/{id:[0-9]+}", s.inProject(s.jsonDeleteDashboard)).Methods(http.MethodDelete)
	r.HandleFunc("/dashboard/{id:[0-9]+}/add", s.inProject(s.jsonAddWidget)).Methods(http.MethodPut)
	r.HandleFunc("/dashboard/{id:[0-9]+}/{widgetID:[0-9]+}", s.inProject(s.jsonRemoveWidget)).Methods(http.MethodDelete)

	r.HandleFunc("/widget", s.inProject(s.jsonCreateWidget)).Methods(http.MethodPost)
	r.HandleFunc("/widget/all", s.inProject(s.jsonListWidgets)).Methods(http.MethodGet)
	r.HandleFunc("/widget/preview", s.inProject(s.jsonPreviewWidget)).Methods(http.MethodPost)
	r.HandleFunc("/widget/{id:[0-9]+}", s.inProject(s.jsonGetWidget)).Methods(http.MethodGet)
	r.HandleFunc("/widget/{id:[0-9]+}", s.inProject(s.jsonUpdateWidget)).Methods(http.MethodPut)
	r.HandleFunc("/widget/{id:[0-9]+}", s.inProject(s.jsonDeleteWidget)).Methods(http.MethodDelete)

	r.HandleFunc("/activity", s.inProject(s.jsonListActivities)).Methods(http.MethodGet)
	r.HandleFunc("/activity/{objectType}/{id:[0-9]+}", s.inProject(s.jsonListObjectActivities)).Methods(http.MethodGet)
}

func (s *Server) jsonListFilters(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := filters.ListFilters(s.db.DB.WithContext(req.Context()), user, project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonGetFilter(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := filters.GetFilter(s.db.DB.WithContext(req.Context()), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateFilter(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.UpdateUserFilterRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Filters.CreateFilter(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonUpdateFilter(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.UpdateUserFilterRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Filters.UpdateFilter(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteFilter(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Filters.DeleteFilter(req.Context(), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonListDashboards(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := dashboards.ListDashboards(s.db.DB.WithContext(req.Context()), user, project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonGetDashboard(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := dashboards.GetDashboard(s.db.DB.WithContext(req.Context()), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateDashboard(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.CreateDashboardRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Dashboards.CreateDashboard(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonUpdateDashboard(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.UpdateDashboardRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Dashboards.UpdateDashboard(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonAddWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.AddWidgetRq
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Dashboards.AddWidget(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonRemoveWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	widgetID, err := pathID(req, "widgetID")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Dashboards.RemoveWidget(req.Context(), user, project, id, widgetID)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteDashboard(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Dashboards.DeleteDashboard(req.Context(), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonListWidgets(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := widgets.ListWidgets(s.db.DB.WithContext(req.Context()), user, project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

// jsonGetWidget serves the widget with its content; ?refresh=true bypasses the content cache.
func (s *Server) jsonGetWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	refresh := req.URL.Query().Get("refresh") == "true"
	rs, err := s.Widgets.GetWidget(req.Context(), user, project, id, refresh)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.WidgetRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Widgets.CreateWidget(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonPreviewWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.WidgetRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	content, err := s.Widgets.PreviewWidget(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, content)
}

func (s *Server) jsonUpdateWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.WidgetRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Widgets.UpdateWidget(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteWidget(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Widgets.DeleteWidget(req.Context(), user, project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonListActivities(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := activities.ListActivities(s.db.DB.WithContext(req.Context()), project.ID, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonListObjectActivities(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	page, err := activities.ListForObject(s.db.DB.WithContext(req.Context()), project.ID, mux.Vars(req)["objectType"], id, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}
