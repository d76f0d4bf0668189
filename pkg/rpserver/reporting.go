package rpserver

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	maxLogRequestSize = 64 << 20
	jsonRequestPart   = "json_request_part"
)

func (s *Server) reportingRoutes(r *mux.Router) {
	r.HandleFunc("/launch", s.inProject(s.jsonStartLaunch)).Methods(http.MethodPost)
	r.HandleFunc("/launch/stop", s.inProject(s.jsonBulkStopLaunch)).Methods(http.MethodPut)
	r.HandleFunc("/launch/{launchID}/finish", s.inProject(s.jsonFinishLaunch)).Methods(http.MethodPut)
	r.HandleFunc("/launch/{id:[0-9]+}/stop", s.inProject(s.jsonStopLaunch)).Methods(http.MethodPut)
	r.HandleFunc("/item", s.inProject(s.jsonStartRootItem)).Methods(http.MethodPost)
	r.HandleFunc("/item/{parentID}", s.inProject(s.jsonStartChildItem)).Methods(http.MethodPost)
	r.HandleFunc("/item/{itemID}", s.inProject(s.jsonFinishItem)).Methods(http.MethodPut)
	r.HandleFunc("/log", s.inProject(s.jsonSaveLog)).Methods(http.MethodPost)
	r.HandleFunc("/log/entry", s.inProject(s.jsonSaveLog)).Methods(http.MethodPost)
}

func (s *Server) jsonStartLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.StartLaunchRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.StartLaunch(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonFinishLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.FinishExecutionRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.FinishLaunch(req.Context(), user, project, mux.Vars(req)["launchID"], rq, s.baseURL(req))
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonStopLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	id, err := pathID(req, "id")
	if err != nil {
		failureResponse(w, err)
		return
	}
	var rq apitype.FinishExecutionRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.StopLaunch(req.Context(), user, project, id, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

func (s *Server) jsonBulkStopLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.BulkFinishRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, s.Reporting.BulkStopLaunch(req.Context(), user, project, rq))
}

func (s *Server) jsonStartRootItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.StartTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.StartRootItem(req.Context(), user, project, rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonStartChildItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.StartTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.StartChildItem(req.Context(), user, project, mux.Vars(req)["parentID"], rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, rs)
}

func (s *Server) jsonFinishItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.FinishTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Reporting.FinishTestItem(req.Context(), user, project, mux.Vars(req)["itemID"], rq)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}

// jsonSaveLog accepts a single JSON log, or a multipart batch whose json_request_part lists
// the logs and whose other parts carry their attachments.
func (s *Server) jsonSaveLog(w http.ResponseWriter, req *http.Request, _ *auth.ReportPortalUser, project *auth.ProjectDetails) {
	if !isMultipart(req) {
		var rq apitype.SaveLogRQ
		if err := api.DecodeJSON(req, &rq); err != nil {
			failureResponse(w, err)
			return
		}
		rs, err := s.Reporting.SaveLog(req.Context(), project, rq, nil)
		if err != nil {
			failureResponse(w, err)
			return
		}
		api.RespondWithJSON(http.StatusCreated, w, rs)
		return
	}

	rqs, files, err := readLogBatch(req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	defer closeFiles(files)
	attachments := make(map[string]*reporting.Attachment, len(files))
	for name, f := range files {
		attachments[name] = &reporting.Attachment{Name: name, ContentType: f.contentType, Content: f.file}
	}
	api.RespondWithJSON(http.StatusCreated, w, s.Reporting.SaveLogBatch(req.Context(), project, rqs, attachments))
}

func isMultipart(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/")
}

type uploadedFile struct {
	file        multipart.File
	contentType string
}

func closeFiles(files map[string]uploadedFile) {
	for _, f := range files {
		f.file.Close()
	}
}

// readLogBatch parses a multipart log request. Files are keyed by their file name, which
// the log requests reference.
func readLogBatch(req *http.Request) ([]apitype.SaveLogRQ, map[string]uploadedFile, error) {
	req.Body = http.MaxBytesReader(nil, req.Body, maxLogRequestSize)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
	}
	form := req.MultipartForm

	var raw []byte
	if values := form.Value[jsonRequestPart]; len(values) > 0 {
		raw = []byte(values[0])
	} else if headers := form.File[jsonRequestPart]; len(headers) > 0 {
		f, err := headers[0].Open()
		if err != nil {
			return nil, nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		raw, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
	} else {
		return nil, nil, rperrors.New(rperrors.IncorrectRequest, "Part '"+jsonRequestPart+"' is missing.")
	}

	var rqs []apitype.SaveLogRQ
	if err := json.Unmarshal(raw, &rqs); err != nil {
		var single apitype.SaveLogRQ
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		rqs = []apitype.SaveLogRQ{single}
	}

	files := map[string]uploadedFile{}
	for part, headers := range form.File {
		if part == jsonRequestPart {
			continue
		}
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				closeFiles(files)
				return nil, nil, rperrors.New(rperrors.BinaryDataCannotBeSaved, err.Error())
			}
			if prev, ok := files[h.Filename]; ok {
				prev.file.Close()
			}
			files[h.Filename] = uploadedFile{file: f, contentType: h.Header.Get("Content-Type")}
		}
	}
	return rqs, files, nil
}
