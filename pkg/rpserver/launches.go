package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/launches"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/importer"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func (s *Server) launchRoutes(r *mux.Router) {
	r.HandleFunc("/launch", s.inProject(s.jsonListLaunches)).Methods(http.MethodGet)
	r.HandleFunc("/launch", s.inProject(s.jsonDeleteLaunches)).Methods(http.MethodDelete)
	r.HandleFunc("/launch/mode", s.inProject(s.jsonListDebugLaunches)).Methods(http.MethodGet)
	r.HandleFunc("/launch/latest", s.inProject(s.jsonLatestLaunches)).Methods(http.MethodGet)
	r.HandleFunc("/launch/names", s.inProject(s.jsonLaunchNames)).Methods(http.MethodGet)
	r.HandleFunc("/launch/compare", s.inProject(s.jsonCompareLaunches)).Methods(http.MethodGet)
	r.HandleFunc("/launch/merge", s.inProject(s.jsonMergeLaunches)).Methods(http.MethodPost)
	r.HandleFunc("/launch/analyze", s.inProject(s.jsonAnalyzeLaunch)).Methods(http.MethodPost)
	r.HandleFunc("/launch/import", s.inProject(s.jsonImportLaunch)).Methods(http.MethodPost)
	r.HandleFunc("/launch/uuid/{id}", s.inProject(s.jsonGetLaunch)).Methods(http.MethodGet)
	r.HandleFunc("/launch/{id}", s.inProject(s.jsonGetLaunch)).Methods(http.MethodGet)
	r.HandleFunc("/launch/{id:[0-9]+}/update", s.inProject(s.jsonUpdateLaunch)).Methods(http.MethodPut)
	r.HandleFunc("/launch/{id:[0-9]+}", s.inProject(s.jsonDeleteLaunch)).Methods(http.MethodDelete)
}

func (s *Server) jsonListLaunches(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := launches.ListLaunches(s.db.DB.WithContext(req.Context()), project, apitype.LaunchModeDefault, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonListDebugLaunches(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := launches.ListLaunches(s.db.DB.WithContext(req.Context()), project, apitype.LaunchModeDebug, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonLatestLaunches(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := launches.LatestLaunches(s.db.DB.WithContext(req.Context()), project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonLaunchNames(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	names, err := launches.LaunchNames(s.db.DB.WithContext(req.Context()), project, req.URL.Query().Get("filter.cnt.name"))
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, names)
}

func (s *Server) jsonCompareLaunches(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	ids, err := api.ParseIDs(req.URL.Query().Get("ids"))
	if err != nil {
		failureResponse(w, err)
		return
	}
	result, err := launches.CompareLaunches(s.db.DB.WithContext(req.Context()), project, ids)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, map[string]interface{}{"result": result})
}

func (s *Server) jsonGetLaunch(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	launch, err := launches.GetLaunch(s.db.DB.WithContext(req.Context()), project, mux.Vars(req)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, launch)
}

func (s *Server) jsonUpdateLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.UpdateLaunchRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Launches.UpdateLaunch(req.Context(), user, project, id, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Launch with ID = '" + mux.Vars(req)["id"] + "' successfully updated.",
	})
}

func (s *Server) jsonDeleteLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Launches.DeleteLaunch(req.Context(), user, project, id); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Launch with ID = '" + mux.Vars(req)["id"] + "' successfully deleted.",
	})
}

func (s *Server) jsonDeleteLaunches(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	ids, err := bulkIDs(req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, s.Launches.DeleteLaunches(req.Context(), user, project, ids))
}

// bulkIDs reads the ids of a bulk operation from the ids query parameter or, when absent,
// from a DeleteBulkRQ body.
func bulkIDs(req *http.Request) ([]uint, error) {
	if q := req.URL.Query().Get("ids"); q != "" {
		return api.ParseIDs(q)
	}
	var rq apitype.DeleteBulkRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		return nil, err
	}
	if len(rq.IDs) == 0 {
		return nil, rperrors.New(rperrors.BadRequest, "ids")
	}
	return rq.IDs, nil
}

func (s *Server) jsonMergeLaunches(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.MergeLaunchesRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	launch, err := s.Launches.MergeLaunches(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, launch)
}

func (s *Server) jsonAnalyzeLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.AnalyzeLaunchRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Launches.AnalyzeLaunch(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonImportLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	req.Body = http.MaxBytesReader(w, req.Body, importer.MaxFileSize+1<<20)
	file, header, err := req.FormFile("file")
	if err != nil {
		failureResponse(w, rperrors.New(rperrors.ImportFileError, err.Error()))
		return
	}
	defer file.Close()
	rs, err := s.Importer.Import(req.Context(), user, project, header.Filename, file,
		req.FormValue("launchName"), s.baseURL(req))
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}
