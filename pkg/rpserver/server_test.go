package rpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/messaging"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type published struct {
	requestType messaging.RequestType
	headers     messaging.Headers
	body        interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakePublisher) PublishRequest(_ context.Context, t messaging.RequestType, headers messaging.Headers, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{requestType: t, headers: headers, body: body})
	return nil
}

func newTestServer(managers Managers) *Server {
	return NewServer(":0", nil, auth.NewAuthenticator(nil, []byte("test-key")), managers, "", time.Hour,
		[]string{AsyncReportingCapability})
}

var (
	testUser    = &auth.ReportPortalUser{ID: 1, Login: "default", Role: apitype.UserRoleUser}
	testProject = &auth.ProjectDetails{ID: 2, Name: "default_personal", Role: apitype.ProjectRoleProjectManager}
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apitype.ErrorRS {
	var rs apitype.ErrorRS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	return rs
}

func TestHealthWithoutDatabase(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(Managers{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "UP", health.Status)
}

func TestInfo(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(Managers{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var info Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, []string{AsyncReportingCapability}, info.Capabilities)
	assert.NotNil(t, info.Analyzers)
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(Managers{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing/here", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, rperrors.NotFound.Code, decodeError(t, rec).ErrorCode)
}

func TestAPIRequiresToken(t *testing.T) {
	for _, path := range []string{"/api/v1/user", "/api/v1/default_personal/launch", "/api/v2/default_personal/launch"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestServer(Managers{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, rperrors.Unauthorized.Code, decodeError(t, rec).ErrorCode)
		})
	}
}

func TestBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://rp.example.com/api/v1/user", nil)
	assert.Equal(t, "http://rp.example.com", newTestServer(Managers{}).baseURL(req))

	s := NewServer(":0", nil, nil, Managers{}, "https://ui.example.com", time.Hour, nil)
	assert.Equal(t, "https://ui.example.com", s.baseURL(req))
}

func TestBulkIDs(t *testing.T) {
	ids, err := bulkIDs(httptest.NewRequest(http.MethodDelete, "/launch?ids=3,1,2", nil))
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 1, 2}, ids)

	ids, err = bulkIDs(httptest.NewRequest(http.MethodDelete, "/launch", strings.NewReader(`{"ids":[7,8]}`)))
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 8}, ids)

	_, err = bulkIDs(httptest.NewRequest(http.MethodDelete, "/launch", strings.NewReader(`{"ids":[]}`)))
	assert.True(t, rperrors.Is(err, rperrors.BadRequest))

	_, err = bulkIDs(httptest.NewRequest(http.MethodDelete, "/launch?ids=1,x", nil))
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
}

type part struct {
	name, fileName, content string
}

func multipartRequest(t *testing.T, target string, parts ...part) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.fileName == "" {
			require.NoError(t, mw.WriteField(p.name, p.content))
			continue
		}
		w, err := mw.CreateFormFile(p.name, p.fileName)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadLogBatch(t *testing.T) {
	req := multipartRequest(t, "/log",
		part{name: jsonRequestPart, content: `[{"itemUuid":"i1","message":"boom","level":"error","file":{"name":"trace.txt"}},{"itemUuid":"i1","message":"plain"}]`},
		part{name: "file", fileName: "trace.txt", content: "stack trace"},
	)
	rqs, files, err := readLogBatch(req)
	require.NoError(t, err)
	defer closeFiles(files)

	require.Len(t, rqs, 2)
	assert.Equal(t, "trace.txt", rqs[0].File.Name)
	assert.Nil(t, rqs[1].File)
	require.Contains(t, files, "trace.txt")
	assert.NotContains(t, files, jsonRequestPart)
}

func TestReadLogBatchSingleObject(t *testing.T) {
	req := multipartRequest(t, "/log",
		part{name: jsonRequestPart, fileName: "blob", content: `{"itemUuid":"i1","message":"single"}`},
	)
	rqs, files, err := readLogBatch(req)
	require.NoError(t, err)
	defer closeFiles(files)

	require.Len(t, rqs, 1)
	assert.Equal(t, "single", rqs[0].Message)
	assert.Empty(t, files)
}

func TestReadLogBatchMissingJSONPart(t *testing.T) {
	req := multipartRequest(t, "/log", part{name: "file", fileName: "a.png", content: "png"})
	_, _, err := readLogBatch(req)
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
}

func TestAsyncStartLaunchPublishes(t *testing.T) {
	publisher := &fakePublisher{}
	s := newTestServer(Managers{Publisher: publisher})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/default_personal/launch",
		strings.NewReader(`{"name":"smoke","startTime":"2024-03-01T10:00:00Z"}`))
	s.asyncStartLaunch(rec, req, testUser, testProject)

	require.Equal(t, http.StatusCreated, rec.Code)
	var rs apitype.StartLaunchRS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.NotEmpty(t, rs.ID)

	require.Len(t, publisher.sent, 1)
	sent := publisher.sent[0]
	assert.Equal(t, messaging.RequestStartLaunch, sent.requestType)
	assert.Equal(t, messaging.Headers{Username: "default", ProjectName: "default_personal"}, sent.headers)
	assert.Equal(t, rs.ID, sent.body.(apitype.StartLaunchRQ).UUID)
}

func TestAsyncKeepsClientUUID(t *testing.T) {
	publisher := &fakePublisher{}
	s := newTestServer(Managers{Publisher: publisher})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/default_personal/item",
		strings.NewReader(`{"name":"suite","type":"SUITE","launchUuid":"l-1","uuid":"mine","startTime":"2024-03-01T10:00:00Z"}`))
	s.asyncStartItem(rec, req, testUser, testProject)

	require.Equal(t, http.StatusCreated, rec.Code)
	var rs apitype.ItemCreatedRS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.Equal(t, "mine", rs.ID)
	require.Len(t, publisher.sent, 1)
	assert.Equal(t, "l-1", publisher.sent[0].headers.LaunchID)
}

func TestAsyncWithoutBroker(t *testing.T) {
	s := newTestServer(Managers{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/default_personal/launch", strings.NewReader(`{"name":"smoke"}`))
	s.asyncStartLaunch(rec, req, testUser, testProject)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, rperrors.UnableInteractWithIntegr.Code, decodeError(t, rec).ErrorCode)
}

func TestAsyncLogBatchInlinesAttachments(t *testing.T) {
	publisher := &fakePublisher{}
	s := newTestServer(Managers{Publisher: publisher})

	req := multipartRequest(t, "/api/v2/default_personal/log",
		part{name: jsonRequestPart, content: `[
			{"itemUuid":"i1","message":"first","file":{"name":"shot.png"}},
			{"itemUuid":"i2","message":"second","file":{"name":"shot.png","contentType":"image/png"}},
			{"itemUuid":"i3","message":"third","file":{"name":"missing.png"}}
		]`},
		part{name: "file", fileName: "shot.png", content: "PNGDATA"},
	)
	rec := httptest.NewRecorder()
	s.asyncSaveLog(rec, req, testUser, testProject)

	require.Equal(t, http.StatusCreated, rec.Code)
	var rs apitype.BatchSaveOperatingRS
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	require.Len(t, rs.Responses, 3)
	assert.NotEmpty(t, rs.Responses[0].ID)
	assert.NotEmpty(t, rs.Responses[1].ID)
	assert.Empty(t, rs.Responses[2].ID)
	assert.Contains(t, rs.Responses[2].Message, "missing.png")

	require.Len(t, publisher.sent, 2)
	for _, sent := range publisher.sent {
		msg := sent.body.(messaging.AsyncLog)
		assert.Equal(t, []byte("PNGDATA"), msg.Content)
		assert.Equal(t, "shot.png", msg.FileName)
	}
	assert.Equal(t, "image/png", publisher.sent[1].body.(messaging.AsyncLog).ContentType)
}

func TestDaemonServerStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	process := DaemonFunc{
		Name: "waiting",
		Fn: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		},
		OnExit: func(err error) { t.Errorf("unexpected exit: %v", err) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewDaemonServer([]DaemonProcess{process}).Serve(ctx)
		close(done)
	}()

	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon server did not stop")
	}
}

func TestDaemonFuncReportsFailure(t *testing.T) {
	var exitErr error
	DaemonFunc{
		Name:   "failing",
		Fn:     func(context.Context) error { return assert.AnError },
		OnExit: func(err error) { exitErr = err },
	}.Run(context.Background())

	assert.Equal(t, assert.AnError, exitErr)
}
