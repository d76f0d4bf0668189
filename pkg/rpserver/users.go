package rpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/users"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
)

func (s *Server) userRoutes(r *mux.Router) {
	r.HandleFunc("/user", asUser(s.jsonCurrentUser)).Methods(http.MethodGet)
	r.HandleFunc("/user", asUser(s.jsonCreateUser)).Methods(http.MethodPost)
	r.HandleFunc("/user/all", asUser(s.jsonListUsers)).Methods(http.MethodGet)
	r.HandleFunc("/user/password", asUser(s.jsonChangePassword)).Methods(http.MethodPost)
	r.HandleFunc("/user/apikeys", asUser(s.jsonCreateApiKey)).Methods(http.MethodPost)
	r.HandleFunc("/user/apikeys", asUser(s.jsonListApiKeys)).Methods(http.MethodGet)
	r.HandleFunc("/user/apikeys/{id:[0-9]+}", asUser(s.jsonDeleteApiKey)).Methods(http.MethodDelete)
	r.HandleFunc("/user/{id:[0-9]+}", asUser(s.jsonDeleteUser)).Methods(http.MethodDelete)
	r.HandleFunc("/user/{login}", asUser(s.jsonGetUser)).Methods(http.MethodGet)
	r.HandleFunc("/user/{login}", asUser(s.jsonEditUser)).Methods(http.MethodPut)
}

func (s *Server) jsonCurrentUser(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	rs, err := users.GetUser(s.db.DB.WithContext(req.Context()), user, user.Login)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonGetUser(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	rs, err := users.GetUser(s.db.DB.WithContext(req.Context()), user, mux.Vars(req)["login"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonListUsers(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	page, err := users.ListUsers(s.db.DB.WithContext(req.Context()), user, req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, page)
}

func (s *Server) jsonCreateUser(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	var rq apitype.CreateUserRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.CreateUser(req.Context(), user, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonEditUser(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	var rq apitype.EditUserRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.EditUser(req.Context(), user, mux.Vars(req)["login"], rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonChangePassword(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	var rq apitype.ChangePasswordRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.ChangePassword(req.Context(), user, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteUser(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.DeleteUser(req.Context(), user, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonCreateApiKey(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	var rq apitype.ApiKeyRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.CreateApiKey(req.Context(), user, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonListApiKeys(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	rs, err := users.ListApiKeys(s.db.DB.WithContext(req.Context()), user)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonDeleteApiKey(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.DeleteApiKey(req.Context(), user, id)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}
