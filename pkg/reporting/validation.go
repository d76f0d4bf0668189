package reporting

import (
	"strings"
	"time"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	maxNameLength = 256
	timeLayout    = "2006-01-02T15:04:05.000Z07:00"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return rperrors.New(rperrors.IncorrectRequest, "Name should have size from 1 to 256.")
	}
	return nil
}

func validateStartLaunch(rq apitype.StartLaunchRQ) error {
	if err := validateName(rq.Name); err != nil {
		return err
	}
	if rq.StartTime.IsZero() {
		return rperrors.New(rperrors.IncorrectRequest, "Start time is required.")
	}
	if rq.Mode != "" && rq.Mode != apitype.LaunchModeDefault && rq.Mode != apitype.LaunchModeDebug {
		return rperrors.New(rperrors.IncorrectRequest, "Unknown launch mode '"+string(rq.Mode)+"'.")
	}
	return nil
}

// canModifyLaunch reports whether the caller owns the launch or manages the project.
func canModifyLaunch(user *auth.ReportPortalUser, project *auth.ProjectDetails, launch *models.Launch) bool {
	if user.IsAdmin() {
		return true
	}
	if launch.ProjectID != project.ID {
		return false
	}
	return launch.UserID == user.ID || project.Role.SameOrHigherThan(apitype.ProjectRoleProjectManager)
}

// parseFinishStatus reads the optional status of a finish request.
func parseFinishStatus(s string) (apitype.Status, bool, error) {
	if s == "" {
		return "", false, nil
	}
	status, ok := apitype.ParseStatus(s)
	if !ok || status == apitype.StatusInProgress {
		return "", false, rperrors.New(rperrors.IncorrectFinishStatus, "Unknown status '"+s+"'.")
	}
	return status, true, nil
}

func validateFinishLaunch(user *auth.ReportPortalUser, project *auth.ProjectDetails, launch *models.Launch, rq apitype.FinishExecutionRQ) error {
	if !canModifyLaunch(user, project, launch) {
		return rperrors.New(rperrors.AccessDenied, "You are not launch owner.")
	}
	if launch.Status != string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.FinishLaunchNotAllowed, "Launch '"+launch.UUID+"' already finished with status '"+launch.Status+"'")
	}
	if rq.EndTime.IsZero() {
		return rperrors.New(rperrors.IncorrectRequest, "End time is required.")
	}
	if rq.EndTime.Before(launch.StartTime) {
		return rperrors.New(rperrors.FinishTimeEarlierThanStart, formatTime(rq.EndTime.Time), formatTime(launch.StartTime), launch.UUID)
	}
	_, _, err := parseFinishStatus(rq.Status)
	return err
}

func validateStartItem(rq apitype.StartTestItemRQ) (apitype.ItemType, error) {
	if err := validateName(rq.Name); err != nil {
		return "", err
	}
	if rq.StartTime.IsZero() {
		return "", rperrors.New(rperrors.IncorrectRequest, "Start time is required.")
	}
	itemType, ok := apitype.ParseItemType(rq.Type)
	if !ok {
		return "", rperrors.New(rperrors.UnsupportedTestItemType, rq.Type)
	}
	return itemType, nil
}

func validateRootItem(project *auth.ProjectDetails, launch *models.Launch, rq apitype.StartTestItemRQ) error {
	if launch.ProjectID != project.ID {
		return rperrors.New(rperrors.AccessDenied, "Launch '"+launch.UUID+"' is not under the specified project.")
	}
	if launch.Status != string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.StartItemNotAllowed, "Launch '"+launch.UUID+"' is not in progress")
	}
	if rq.StartTime.Before(launch.StartTime) {
		return rperrors.New(rperrors.ChildStartTimeEarlier, formatTime(rq.StartTime.Time), formatTime(launch.StartTime), launch.UUID)
	}
	return nil
}

func validateChildItem(parent *models.TestItem, parentHasLogs bool, rq apitype.StartTestItemRQ) error {
	if rq.StartTime.Before(parent.StartTime) {
		return rperrors.New(rperrors.ChildStartTimeEarlier, formatTime(rq.StartTime.Time), formatTime(parent.StartTime), parent.UUID)
	}
	if parent.Status != string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.StartItemNotAllowed, "Parent item '"+parent.UUID+"' is not in progress")
	}
	if parentHasLogs {
		return rperrors.New(rperrors.StartItemNotAllowed, "Parent item '"+parent.UUID+"' already has logs")
	}
	return nil
}

func validateFinishItem(user *auth.ReportPortalUser, launch *models.Launch, item *models.TestItem, statusProvided, hasChildren bool, rq apitype.FinishTestItemRQ) error {
	if !user.IsAdmin() && launch.UserID != user.ID {
		return rperrors.New(rperrors.FinishItemNotAllowed, "You are not a launch owner.")
	}
	if item.Status != string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.ReportingItemFinished, "Test item '"+item.UUID+"' is already finished")
	}
	if !statusProvided && !hasChildren {
		return rperrors.New(rperrors.AmbiguousTestItemStatus,
			"There is no status provided from request and there are no descendants to check statistics for test item id '"+item.UUID+"'")
	}
	if rq.EndTime.IsZero() {
		return rperrors.New(rperrors.IncorrectRequest, "End time is required.")
	}
	if rq.EndTime.Before(item.StartTime) {
		return rperrors.New(rperrors.FinishTimeEarlierThanStart, formatTime(rq.EndTime.Time), formatTime(item.StartTime), item.UUID)
	}
	return nil
}

func validateSaveLog(rq apitype.SaveLogRQ) error {
	if rq.LogTime.IsZero() {
		return rperrors.New(rperrors.BadSaveLogRequest, "Log time is required.")
	}
	if rq.ItemUUID == "" && rq.LaunchUUID == "" {
		return rperrors.New(rperrors.BadSaveLogRequest, "Either item or launch uuid is required.")
	}
	return nil
}
