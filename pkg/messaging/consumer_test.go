package messaging

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type fakeReporter struct {
	calls    []string
	parent   string
	item     string
	launch   string
	baseURL  string
	content  string
	launchRQ apitype.StartLaunchRQ
}

func (f *fakeReporter) StartLaunch(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails, rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error) {
	f.calls = append(f.calls, "startLaunch")
	f.launchRQ = rq
	return &apitype.StartLaunchRS{ID: rq.UUID}, nil
}

func (f *fakeReporter) FinishLaunch(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails, launchUUID string, _ apitype.FinishExecutionRQ, baseURL string) (*apitype.FinishLaunchRS, error) {
	f.calls = append(f.calls, "finishLaunch")
	f.launch = launchUUID
	f.baseURL = baseURL
	return &apitype.FinishLaunchRS{}, nil
}

func (f *fakeReporter) StartRootItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails, _ apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	f.calls = append(f.calls, "startRoot")
	return &apitype.ItemCreatedRS{}, nil
}

func (f *fakeReporter) StartChildItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails, parentUUID string, _ apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	f.calls = append(f.calls, "startChild")
	f.parent = parentUUID
	return &apitype.ItemCreatedRS{}, nil
}

func (f *fakeReporter) FinishTestItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails, itemUUID string, _ apitype.FinishTestItemRQ) (*apitype.OperationCompletionRS, error) {
	f.calls = append(f.calls, "finishItem")
	f.item = itemUUID
	return nil, rperrors.New(rperrors.TestItemNotFound, itemUUID)
}

func (f *fakeReporter) SaveLog(_ context.Context, _ *auth.ProjectDetails, _ apitype.SaveLogRQ, file *reporting.Attachment) (*apitype.EntryCreatedAsyncRS, error) {
	f.calls = append(f.calls, "log")
	if file != nil {
		b, _ := io.ReadAll(file.Content)
		f.content = string(b)
	}
	return &apitype.EntryCreatedAsyncRS{}, nil
}

func staticResolver(_ context.Context, login, projectName string) (*auth.ReportPortalUser, *auth.ProjectDetails, error) {
	return &auth.ReportPortalUser{Login: login}, &auth.ProjectDetails{ID: 1, Name: projectName}, nil
}

func TestHandleDispatchesByRequestType(t *testing.T) {
	reporter := &fakeReporter{}
	consumer := NewReportingConsumer(nil, reporter, staticResolver, ConsumerOptions{})
	ctx := context.Background()

	headers := Headers{Username: "default", ProjectName: "demo"}
	body, err := json.Marshal(apitype.StartLaunchRQ{Name: "nightly", UUID: "l-1"})
	require.NoError(t, err)
	require.NoError(t, consumer.Handle(ctx, headers.table(RequestStartLaunch), body))
	assert.Equal(t, "l-1", reporter.launchRQ.UUID)

	headers.LaunchID = "l-1"
	headers.BaseURL = "http://rp"
	require.NoError(t, consumer.Handle(ctx, headers.table(RequestFinishLaunch), []byte(`{"endTime": 1700000000000}`)))
	assert.Equal(t, "l-1", reporter.launch)
	assert.Equal(t, "http://rp", reporter.baseURL)

	require.NoError(t, consumer.Handle(ctx, Headers{Username: "u", ProjectName: "demo"}.table(RequestStartItem), []byte(`{"name": "suite"}`)))
	require.NoError(t, consumer.Handle(ctx, Headers{ParentItemID: "p-1"}.table(RequestStartItem), []byte(`{"name": "step"}`)))
	assert.Equal(t, "p-1", reporter.parent)

	err = consumer.Handle(ctx, Headers{ItemID: "i-1"}.table(RequestFinishItem), []byte(`{}`))
	assert.True(t, rperrors.Is(err, rperrors.TestItemNotFound))
	assert.True(t, retriable(err))

	logBody, err := json.Marshal(AsyncLog{Request: apitype.SaveLogRQ{Message: "boom"}, FileName: "a.txt", Content: []byte("data")})
	require.NoError(t, err)
	require.NoError(t, consumer.Handle(ctx, Headers{}.table(RequestLog), logBody))
	assert.Equal(t, "data", reporter.content)

	assert.Equal(t, []string{"startLaunch", "finishLaunch", "startRoot", "startChild", "finishItem", "log"}, reporter.calls)

	err = consumer.Handle(ctx, amqp.Table{HeaderRequestType: "DELETE"}, []byte(`{}`))
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
	assert.False(t, retriable(err))

	err = consumer.Handle(ctx, Headers{}.table(RequestStartLaunch), []byte(`not json`))
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))
}

func TestDeathCount(t *testing.T) {
	headers := amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"queue": QueueRetry, "count": int64(7)},
			amqp.Table{"queue": QueueStartItem, "count": int64(2)},
		},
	}
	assert.Equal(t, int64(2), deathCount(headers, QueueStartItem))
	assert.Equal(t, int64(0), deathCount(headers, QueueLog))
	assert.Equal(t, int64(0), deathCount(amqp.Table{}, QueueLog))
}

func TestHeadersRoundTrip(t *testing.T) {
	h := Headers{Username: "u", ProjectName: "p", ItemID: "i"}
	table := h.table(RequestFinishItem)
	assert.Equal(t, string(RequestFinishItem), table[HeaderRequestType])
	_, hasLaunch := table[HeaderLaunchID]
	assert.False(t, hasLaunch)
	assert.Equal(t, h, headersFromTable(table))
}
