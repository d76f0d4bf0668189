// Package importer turns JUnit XML reports into launches.
package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joshdk/go-junit"
	log "github.com/sirupsen/logrus"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// MaxFileSize bounds the size of an uploaded report.
const MaxFileSize = 32 << 20

// Reporter is the part of the reporting service an import drives.
type Reporter interface {
	StartLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
		rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error)
	StartRootItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
		rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error)
	StartChildItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
		parentUUID string, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error)
	FinishTestItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
		itemUUID string, rq apitype.FinishTestItemRQ) (*apitype.OperationCompletionRS, error)
	SaveLog(ctx context.Context, project *auth.ProjectDetails, rq apitype.SaveLogRQ,
		file *reporting.Attachment) (*apitype.EntryCreatedAsyncRS, error)
	FinishLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
		launchUUID string, rq apitype.FinishExecutionRQ, baseURL string) (*apitype.FinishLaunchRS, error)
}

type Importer struct {
	reporter Reporter
	now      func() time.Time
}

func New(reporter Reporter) *Importer {
	return &Importer{reporter: reporter, now: time.Now}
}

// Parse reads a report, either a single XML file or a zip archive of them.
func Parse(fileName string, r io.Reader) ([]junit.Suite, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, rperrors.New(rperrors.ImportFileError, err.Error())
	}
	if len(data) > MaxFileSize {
		return nil, rperrors.New(rperrors.ImportFileError, fmt.Sprintf("File exceeds %d bytes.", MaxFileSize))
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xml":
		suites, err := junit.Ingest(data)
		if err != nil {
			return nil, rperrors.New(rperrors.ParsingXMLError, err.Error())
		}
		return suites, nil
	case ".zip":
		return parseZip(data)
	}
	return nil, rperrors.New(rperrors.ImportFileError, "Only .xml and .zip files are supported.")
}

func parseZip(data []byte) ([]junit.Suite, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, rperrors.New(rperrors.ImportFileError, err.Error())
	}
	files := append([]*zip.File(nil), zr.File...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var suites []junit.Suite
	for _, f := range files {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, rperrors.New(rperrors.ImportFileError, err.Error())
		}
		content, err := io.ReadAll(io.LimitReader(rc, MaxFileSize))
		rc.Close()
		if err != nil {
			return nil, rperrors.New(rperrors.ImportFileError, err.Error())
		}
		parsed, err := junit.Ingest(content)
		if err != nil {
			return nil, rperrors.New(rperrors.ParsingXMLError, f.Name+": "+err.Error())
		}
		suites = append(suites, parsed...)
	}
	if len(suites) == 0 {
		return nil, rperrors.New(rperrors.ImportFileError, "There are no XML reports in the archive.")
	}
	return suites, nil
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func suiteStart(s junit.Suite) (time.Time, bool) {
	ts := s.Properties["timestamp"]
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// launchStart is the earliest suite timestamp, or fallback when no suite has one.
func launchStart(suites []junit.Suite, fallback time.Time) time.Time {
	start := fallback
	found := false
	for _, s := range suites {
		if t, ok := suiteStart(s); ok && (!found || t.Before(start)) {
			start, found = t, true
		}
	}
	return start
}

func testStatus(t junit.Test) apitype.Status {
	switch t.Status {
	case junit.StatusFailed, junit.StatusError:
		return apitype.StatusFailed
	case junit.StatusSkipped:
		return apitype.StatusSkipped
	}
	return apitype.StatusPassed
}

func failureMessage(t junit.Test) string {
	parts := []string{}
	if t.Message != "" {
		parts = append(parts, t.Message)
	}
	if t.Error != nil {
		if e, ok := t.Error.(junit.Error); ok && e.Body != "" && e.Body != t.Message {
			parts = append(parts, e.Body)
		} else if !ok && t.Error.Error() != t.Message {
			parts = append(parts, t.Error.Error())
		}
	}
	if len(parts) == 0 {
		return string(t.Status)
	}
	return strings.Join(parts, "\n")
}

type run struct {
	*Importer
	ctx        context.Context
	user       *auth.ReportPortalUser
	project    *auth.ProjectDetails
	launchUUID string
}

// Import creates a finished launch from a JUnit report. The launch name defaults to the file
// name without extension.
func (im *Importer) Import(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	fileName string, r io.Reader, launchName, baseURL string) (*apitype.OperationCompletionRS, error) {
	suites, err := Parse(fileName, r)
	if err != nil {
		return nil, err
	}
	if launchName = strings.TrimSpace(launchName); launchName == "" {
		launchName = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}

	start := launchStart(suites, im.now().UTC())
	launch, err := im.reporter.StartLaunch(ctx, user, project, apitype.StartLaunchRQ{
		Name:      launchName,
		StartTime: apitype.NewTime(start),
		Mode:      apitype.LaunchModeDefault,
	})
	if err != nil {
		return nil, err
	}
	rn := &run{Importer: im, ctx: ctx, user: user, project: project, launchUUID: launch.ID}

	end := start
	for _, s := range suites {
		suiteEnd, err := rn.suite("", s, start)
		if err != nil {
			return nil, err
		}
		if suiteEnd.After(end) {
			end = suiteEnd
		}
	}
	if _, err := im.reporter.FinishLaunch(ctx, user, project, launch.ID,
		apitype.FinishExecutionRQ{EndTime: apitype.NewTime(end)}, baseURL); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"launch": launch.ID, "project": project.Name, "suites": len(suites)}).Info("report imported")
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("Launch with id = %s is successfully imported.", launch.ID),
	}, nil
}

func (rn *run) startItem(parentUUID string, rq apitype.StartTestItemRQ) (string, error) {
	rq.LaunchUUID = rn.launchUUID
	var rs *apitype.ItemCreatedRS
	var err error
	if parentUUID == "" {
		rs, err = rn.reporter.StartRootItem(rn.ctx, rn.user, rn.project, rq)
	} else {
		rs, err = rn.reporter.StartChildItem(rn.ctx, rn.user, rn.project, parentUUID, rq)
	}
	if err != nil {
		return "", err
	}
	return rs.ID, nil
}

func (rn *run) log(itemUUID string, at time.Time, level apitype.LogLevel, message string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	_, err := rn.reporter.SaveLog(rn.ctx, rn.project, apitype.SaveLogRQ{
		ItemUUID: itemUUID,
		LogTime:  apitype.NewTime(at),
		Message:  message,
		Level:    string(level),
	}, nil)
	return err
}

// suite reports a suite as a TEST item and returns when it ended. Test cases run one after
// another from the suite start.
func (rn *run) suite(parentUUID string, s junit.Suite, defaultStart time.Time) (time.Time, error) {
	start, ok := suiteStart(s)
	if !ok {
		start = defaultStart
	}
	name := s.Name
	if name == "" {
		name = s.Package
	}
	if name == "" {
		name = "Suite"
	}
	suiteUUID, err := rn.startItem(parentUUID, apitype.StartTestItemRQ{
		Name:      name,
		StartTime: apitype.NewTime(start),
		Type:      string(apitype.ItemTypeTest),
	})
	if err != nil {
		return time.Time{}, err
	}

	cursor := start
	for _, t := range s.Tests {
		if cursor, err = rn.test(suiteUUID, t, cursor); err != nil {
			return time.Time{}, err
		}
	}
	for _, nested := range s.Suites {
		if cursor, err = rn.suite(suiteUUID, nested, cursor); err != nil {
			return time.Time{}, err
		}
	}
	if total := start.Add(s.Totals.Duration); total.After(cursor) {
		cursor = total
	}
	if err := rn.log(suiteUUID, start, apitype.LogLevelInfo, s.SystemOut); err != nil {
		return time.Time{}, err
	}
	if err := rn.log(suiteUUID, start, apitype.LogLevelError, s.SystemErr); err != nil {
		return time.Time{}, err
	}
	if _, err := rn.reporter.FinishTestItem(rn.ctx, rn.user, rn.project, suiteUUID, apitype.FinishTestItemRQ{
		EndTime:    apitype.NewTime(cursor),
		LaunchUUID: rn.launchUUID,
	}); err != nil {
		return time.Time{}, err
	}
	return cursor, nil
}

func (rn *run) test(suiteUUID string, t junit.Test, start time.Time) (time.Time, error) {
	codeRef := t.Name
	if t.Classname != "" {
		codeRef = t.Classname + "." + t.Name
	}
	itemUUID, err := rn.startItem(suiteUUID, apitype.StartTestItemRQ{
		Name:      t.Name,
		StartTime: apitype.NewTime(start),
		Type:      string(apitype.ItemTypeStep),
		CodeRef:   codeRef,
	})
	if err != nil {
		return time.Time{}, err
	}
	end := start.Add(t.Duration)
	status := testStatus(t)
	if status == apitype.StatusFailed {
		if err := rn.log(itemUUID, start, apitype.LogLevelError, failureMessage(t)); err != nil {
			return time.Time{}, err
		}
	}
	if err := rn.log(itemUUID, start, apitype.LogLevelInfo, t.SystemOut); err != nil {
		return time.Time{}, err
	}
	if err := rn.log(itemUUID, start, apitype.LogLevelError, t.SystemErr); err != nil {
		return time.Time{}, err
	}
	if _, err := rn.reporter.FinishTestItem(rn.ctx, rn.user, rn.project, itemUUID, apitype.FinishTestItemRQ{
		EndTime:    apitype.NewTime(end),
		Status:     string(status),
		LaunchUUID: rn.launchUUID,
	}); err != nil {
		return time.Time{}, err
	}
	return end, nil
}
