package api

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{
			name:       "domain error keeps its code",
			err:        rperrors.New(rperrors.LaunchNotFound, "42"),
			wantStatus: http.StatusNotFound,
			wantCode:   rperrors.LaunchNotFound.Code,
		},
		{
			name:       "wrapped domain error",
			err:        errors.WithMessage(rperrors.New(rperrors.AccessDenied), "updating launch"),
			wantStatus: http.StatusForbidden,
			wantCode:   rperrors.AccessDenied.Code,
		},
		{
			name:       "plain error is unclassified",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   rperrors.UnclassifiedError.Code,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondWithError(rec, tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var rs apitype.ErrorRS
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
			assert.Equal(t, tc.wantCode, rs.ErrorCode)
			assert.NotEmpty(t, rs.Message)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var rq apitype.StartLaunchRQ
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"smoke"}`))
	require.NoError(t, DecodeJSON(req, &rq))
	assert.Equal(t, "smoke", rq.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := DecodeJSON(req, &rq)
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)

	ids, err = ParseIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseIDs("1,abc")
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
}

func TestIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?historyDepth=7&bad=x", nil)

	v, err := IntParam(req, "historyDepth", 5)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = IntParam(req, "missing", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = IntParam(req, "bad", 5)
	assert.Error(t, err)
}

func TestGetBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://rp.local:8080/api/v1/x", nil)
	assert.Equal(t, "http://rp.local:8080", GetBaseURL(req))

	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://rp.local:8080", GetBaseURL(req))

	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "reportportal.example.com")
	assert.Equal(t, "http://reportportal.example.com", GetBaseURL(req))
}
