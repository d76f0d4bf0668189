package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const report = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="auth" timestamp="2024-03-01T10:00:00" tests="3">
    <testcase classname="auth.Login" name="valid" time="1.5"/>
    <testcase classname="auth.Login" name="invalid" time="2">
      <failure message="expected 401">stack trace</failure>
    </testcase>
    <testcase classname="auth.Login" name="sso" time="0">
      <skipped/>
    </testcase>
    <system-out>suite output</system-out>
  </testsuite>
</testsuites>`

type item struct {
	parent string
	rq     apitype.StartTestItemRQ
	finish apitype.FinishTestItemRQ
	logs   []apitype.SaveLogRQ
}

type fakeReporter struct {
	launch   apitype.StartLaunchRQ
	finished apitype.FinishExecutionRQ
	items    map[string]*item
	order    []string
}

func (f *fakeReporter) StartLaunch(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails,
	rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error) {
	f.launch = rq
	f.items = map[string]*item{}
	return &apitype.StartLaunchRS{ID: "launch-1", Number: 1}, nil
}

func (f *fakeReporter) start(parent string, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	id := "item-" + strconv.Itoa(len(f.order)+1)
	f.items[id] = &item{parent: parent, rq: rq}
	f.order = append(f.order, id)
	return &apitype.ItemCreatedRS{ID: id}, nil
}

func (f *fakeReporter) StartRootItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails,
	rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	return f.start("", rq)
}

func (f *fakeReporter) StartChildItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails,
	parentUUID string, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	return f.start(parentUUID, rq)
}

func (f *fakeReporter) FinishTestItem(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails,
	itemUUID string, rq apitype.FinishTestItemRQ) (*apitype.OperationCompletionRS, error) {
	f.items[itemUUID].finish = rq
	return &apitype.OperationCompletionRS{}, nil
}

func (f *fakeReporter) SaveLog(_ context.Context, _ *auth.ProjectDetails, rq apitype.SaveLogRQ,
	_ *reporting.Attachment) (*apitype.EntryCreatedAsyncRS, error) {
	it := f.items[rq.ItemUUID]
	it.logs = append(it.logs, rq)
	return &apitype.EntryCreatedAsyncRS{}, nil
}

func (f *fakeReporter) FinishLaunch(_ context.Context, _ *auth.ReportPortalUser, _ *auth.ProjectDetails,
	_ string, rq apitype.FinishExecutionRQ, _ string) (*apitype.FinishLaunchRS, error) {
	f.finished = rq
	return &apitype.FinishLaunchRS{}, nil
}

func TestImport(t *testing.T) {
	reporter := &fakeReporter{}
	im := New(reporter)
	project := &auth.ProjectDetails{ID: 1, Name: "demo"}

	rs, err := im.Import(context.Background(), &auth.ReportPortalUser{ID: 1}, project, "results/junit.xml",
		strings.NewReader(report), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Launch with id = launch-1 is successfully imported.", rs.Message)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "junit", reporter.launch.Name)
	assert.True(t, reporter.launch.StartTime.Equal(start))
	assert.True(t, reporter.finished.EndTime.Equal(start.Add(3500*time.Millisecond)))

	require.Len(t, reporter.order, 4)
	suite := reporter.items["item-1"]
	assert.Equal(t, "", suite.parent)
	assert.Equal(t, string(apitype.ItemTypeTest), suite.rq.Type)
	require.Len(t, suite.logs, 1)
	assert.Equal(t, "suite output", suite.logs[0].Message)

	valid := reporter.items["item-2"]
	assert.Equal(t, "item-1", valid.parent)
	assert.Equal(t, "auth.Login.valid", valid.rq.CodeRef)
	assert.Equal(t, string(apitype.StatusPassed), valid.finish.Status)
	assert.True(t, valid.finish.EndTime.Equal(start.Add(1500*time.Millisecond)))

	invalid := reporter.items["item-3"]
	assert.True(t, invalid.rq.StartTime.Equal(start.Add(1500*time.Millisecond)))
	assert.Equal(t, string(apitype.StatusFailed), invalid.finish.Status)
	require.Len(t, invalid.logs, 1)
	assert.Equal(t, string(apitype.LogLevelError), invalid.logs[0].Level)
	assert.Equal(t, "expected 401\nstack trace", invalid.logs[0].Message)

	assert.Equal(t, string(apitype.StatusSkipped), reporter.items["item-4"].finish.Status)
}

func TestParse(t *testing.T) {
	_, err := Parse("report.json", strings.NewReader("{}"))
	assert.True(t, rperrors.Is(err, rperrors.ImportFileError))

	_, err = Parse("report.xml", strings.NewReader("<testsuite"))
	assert.True(t, rperrors.Is(err, rperrors.ParsingXMLError))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"b.xml", "a.xml", "notes.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(`<testsuite name="` + name + `"><testcase name="t"/></testsuite>`))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	suites, err := Parse("reports.zip", &buf)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "a.xml", suites[0].Name)

	var empty bytes.Buffer
	require.NoError(t, zip.NewWriter(&empty).Close())
	_, err = Parse("reports.zip", &empty)
	assert.True(t, rperrors.Is(err, rperrors.ImportFileError))
}
