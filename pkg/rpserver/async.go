package rpserver

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/messaging"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// asyncRoutes queue reporting requests on the broker and answer with the uuid the entity
// will get once a consumer applies the request.
func (s *Server) asyncRoutes(r *mux.Router) {
	r.HandleFunc("/launch", s.inProject(s.asyncStartLaunch)).Methods(http.MethodPost)
	r.HandleFunc("/launch/{launchID}/finish", s.inProject(s.asyncFinishLaunch)).Methods(http.MethodPut)
	r.HandleFunc("/item", s.inProject(s.asyncStartItem)).Methods(http.MethodPost)
	r.HandleFunc("/item/{parentID}", s.inProject(s.asyncStartItem)).Methods(http.MethodPost)
	r.HandleFunc("/item/{itemID}", s.inProject(s.asyncFinishItem)).Methods(http.MethodPut)
	r.HandleFunc("/log", s.inProject(s.asyncSaveLog)).Methods(http.MethodPost)
	r.HandleFunc("/log/entry", s.inProject(s.asyncSaveLog)).Methods(http.MethodPost)
}

func (s *Server) publish(req *http.Request, t messaging.RequestType, headers messaging.Headers, body interface{}) error {
	if s.Publisher == nil {
		return rperrors.New(rperrors.UnableInteractWithIntegr, "Asynchronous reporting is not configured.")
	}
	return s.Publisher.PublishRequest(req.Context(), t, headers, body)
}

func asyncHeaders(user *auth.ReportPortalUser, project *auth.ProjectDetails) messaging.Headers {
	return messaging.Headers{Username: user.Login, ProjectName: project.Name}
}

func (s *Server) asyncStartLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.StartLaunchRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	if rq.UUID == "" {
		rq.UUID = uuid.NewString()
	}
	if err := s.publish(req, messaging.RequestStartLaunch, asyncHeaders(user, project), rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, apitype.StartLaunchRS{ID: rq.UUID})
}

func (s *Server) asyncFinishLaunch(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.FinishExecutionRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	launchID := mux.Vars(req)["launchID"]
	headers := asyncHeaders(user, project)
	headers.LaunchID = launchID
	headers.BaseURL = s.baseURL(req)
	if err := s.publish(req, messaging.RequestFinishLaunch, headers, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.FinishLaunchRS{ID: launchID})
}

func (s *Server) asyncStartItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.StartTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	if rq.UUID == "" {
		rq.UUID = uuid.NewString()
	}
	headers := asyncHeaders(user, project)
	headers.LaunchID = rq.LaunchUUID
	headers.ParentItemID = mux.Vars(req)["parentID"]
	if err := s.publish(req, messaging.RequestStartItem, headers, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusCreated, w, apitype.ItemCreatedRS{ID: rq.UUID, UniqueID: rq.UniqueID})
}

func (s *Server) asyncFinishItem(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	var rq apitype.FinishTestItemRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	itemID := mux.Vars(req)["itemID"]
	headers := asyncHeaders(user, project)
	headers.LaunchID = rq.LaunchUUID
	headers.ItemID = itemID
	if err := s.publish(req, messaging.RequestFinishItem, headers, rq); err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, apitype.OperationCompletionRS{
		Message: "Accepted finish request for test item ID = " + itemID,
	})
}

// asyncSaveLog queues logs with their attachment content inlined in the message.
func (s *Server) asyncSaveLog(w http.ResponseWriter, req *http.Request, user *auth.ReportPortalUser, project *auth.ProjectDetails) {
	headers := asyncHeaders(user, project)
	if !isMultipart(req) {
		var rq apitype.SaveLogRQ
		if err := api.DecodeJSON(req, &rq); err != nil {
			failureResponse(w, err)
			return
		}
		if rq.UUID == "" {
			rq.UUID = uuid.NewString()
		}
		if err := s.publish(req, messaging.RequestLog, headers, messaging.AsyncLog{Request: rq}); err != nil {
			failureResponse(w, err)
			return
		}
		api.RespondWithJSON(http.StatusCreated, w, apitype.EntryCreatedAsyncRS{ID: rq.UUID})
		return
	}

	rqs, files, err := readLogBatch(req)
	if err != nil {
		failureResponse(w, err)
		return
	}
	defer closeFiles(files)
	result := apitype.BatchSaveOperatingRS{Responses: make([]apitype.BatchElementCreatedRS, 0, len(rqs))}
	for _, rq := range rqs {
		if rq.UUID == "" {
			rq.UUID = uuid.NewString()
		}
		msg := messaging.AsyncLog{Request: rq}
		if rq.File != nil {
			f, ok := files[rq.File.Name]
			if !ok {
				result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{
					Message: rperrors.New(rperrors.BinaryDataCannotBeSaved, "No file part named '"+rq.File.Name+"'").Error(),
				})
				continue
			}
			_, err := f.file.Seek(0, io.SeekStart)
			var content []byte
			if err == nil {
				content, err = io.ReadAll(f.file)
			}
			if err != nil {
				result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{
					Message: rperrors.New(rperrors.BinaryDataCannotBeSaved, err.Error()).Error(),
				})
				continue
			}
			msg.FileName = rq.File.Name
			msg.ContentType = rq.File.ContentType
			if msg.ContentType == "" {
				msg.ContentType = f.contentType
			}
			msg.Content = content
		}
		if err := s.publish(req, messaging.RequestLog, headers, msg); err != nil {
			result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{Message: err.Error()})
			continue
		}
		result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{ID: rq.UUID})
	}
	api.RespondWithJSON(http.StatusCreated, w, result)
}
