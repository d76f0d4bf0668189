package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/items"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func (s *Server) itemRoutes(r *mux.Router) {
	r.HandleFunc("/item", s.inProject(s.jsonListItems)).Methods(http.MethodGet)
	r.HandleFunc("/item", s.inProject(s.jsonDefineIssues)).Methods(http.MethodPut)
	r.HandleFunc("/item", s.inProject(s.jsonDeleteItems)).Methods(http.MethodDelete)
	r.HandleFunc("/item/history", s.inProject(s.jsonItemHistory)).Methods(http.MethodGet)
	r.HandleFunc("/item/ticket/ids", s.inProject(s.jsonTicketIDs)).Methods(http.MethodGet)
	r.HandleFunc("/item/issue/link", s.inProject(s.jsonLinkTickets)).Methods(http.MethodPut)
	r.HandleFunc("/item/issue/unlink", s.inProject(s.jsonUnlinkTickets)).Methods(http.MethodPut)
	r.HandleFunc("/item/uuid/{id}", s.inProject(s.jsonGetItem)).Methods(http.MethodGet)
	r.HandleFunc("/item/{id:[0-9]+}/search", s.inProject(s.jsonSearchSimilarItems)).Methods(http.MethodGet)
	r.HandleFunc("/item/{id}", s.inProject(s.jsonGetItem)).Methods(http.MethodGet)
	r.HandleFunc("/item/{id:[0-9]+}/update", s.inProject(s.jsonUpdateItem)).Methods(http.MethodPut)
	r.HandleFunc("/item/{id:[0-9]+}", s.inProject(s.jsonDeleteItem)).Methods(http.MethodDelete)
}

func (s *Server) jsonListItems(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	page, err := items.ListItems(s.db.DB.WithContext(req.Context()), project, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonGetItem(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	item, err := items.GetItem(s.db.DB.WithContext(req.Context()), project, mux.Vars(req)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, item)
}

func (s *Server) jsonUpdateItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.UpdateTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Items.UpdateItem(req.Context(), user, project, id, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "TestItem with ID = '" + mux.Vars(req)["id"] + "' successfully updated.",
	})
}

func (s *Server) jsonDeleteItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	if err := s.Items.DeleteItem(req.Context(), user, project, id); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Test Item with ID = '" + mux.Vars(req)["id"] + "' has been successfully deleted.",
	})
}

func (s *Server) jsonDeleteItems(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	ids, err := bulkIDs(req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, s.Items.DeleteItems(req.Context(), user, project, ids))
}

func (s *Server) jsonDefineIssues(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.DefineIssueRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	issues, err := s.Items.DefineIssues(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, issues)
}

func (s *Server) jsonLinkTickets(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.LinkExternalIssueRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Items.LinkTickets(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonUnlinkTickets(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.UnlinkExternalIssueRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Items.UnlinkTickets(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

// jsonItemHistory serves ?launchId=&parentId=&historyDepth=.
func (s *Server) jsonItemHistory(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	q := req.URL.Query()
	launchID, err := api.ParseID(q.Get("launchId"))
	if err != nil {
		failureResponse(w, err)
		return
	}
	var parentID *uint
	if p := q.Get("parentId"); p != "" {
		id, err := api.ParseID(p)
		if err != nil {
			failureResponse(w, err)
			return
		}
		parentID = &id
	}
	depth, err := api.IntParam(req, "historyDepth", items.DefaultHistoryDepth)
	if err != nil {
		failureResponse(w, err)
		return
	}
	history, err := items.History(s.db.DB.WithContext(req.Context()), project, launchID, parentID, depth)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, history)
}

func (s *Server) jsonTicketIDs(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	launchID, err := api.ParseID(req.URL.Query().Get("launch"))
	if err != nil {
		failureResponse(w, err)
		return
	}
	ids, err := items.TicketIDs(s.db.DB.WithContext(req.Context()), project, launchID, req.URL.Query().Get("term"))
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, ids)
}

// jsonSearchSimilarItems asks the analyzers for items of earlier launches failing like this one.
func (s *Server) jsonSearchSimilarItems(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	if s.Analyzer == nil {
		failureResponse(w, rperrors.New(rperrors.UnableInteractWithIntegr, "There are no analyzers deployed."))
		return
	}
	found, err := s.Analyzer.SearchLogs(req.Context(), project, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, found)
}
