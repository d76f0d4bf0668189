// Package api holds the helpers shared by the API handlers: JSON responses, error
// translation and request decoding.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// RespondWithJSON writes data as the JSON body of a response with the given status.
func RespondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("could not write response")
	}
}

// RespondWithError translates err to an error response. Domain errors keep their code and
// status, anything else is reported as unclassified.
func RespondWithError(w http.ResponseWriter, err error) {
	RespondWithJSON(rperrors.StatusOf(err), w, ErrorResponse(err))
}

// ErrorResponse is the body describing err.
func ErrorResponse(err error) apitype.ErrorRS {
	if rpErr, ok := rperrors.As(err); ok {
		return apitype.ErrorRS{ErrorCode: rpErr.Type.Code, Message: rpErr.Message}
	}
	log.WithError(err).Error("unclassified error handling request")
	return apitype.ErrorRS{
		ErrorCode: rperrors.UnclassifiedError.Code,
		Message:   fmt.Sprintf("Unclassified error [%s]", err.Error()),
	}
}

// DecodeJSON reads the request body into v.
func DecodeJSON(req *http.Request, v interface{}) error {
	if req.Body == nil {
		return rperrors.New(rperrors.IncorrectRequest, "request body is empty")
	}
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return rperrors.New(rperrors.IncorrectRequest, err.Error())
	}
	return nil
}

// ParseID reads a numeric identifier from a path parameter.
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, rperrors.New(rperrors.IncorrectRequest, "'"+s+"' is not a valid id")
	}
	return uint(id), nil
}

// ParseIDs reads a comma separated list of identifiers, such as ?ids=1,2,3.
func ParseIDs(s string) ([]uint, error) {
	if s == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		id, err := ParseID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetBaseURL is the scheme and host the request was sent to, honoring proxy headers.
func GetBaseURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if fwd := req.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host := req.Host
	if fwd := req.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

// IntParam reads an optional integer query parameter.
func IntParam(req *http.Request, name string, def int) (int, error) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, rperrors.New(rperrors.IncorrectRequest, "parameter '"+name+"' must be a number")
	}
	return i, nil
}
