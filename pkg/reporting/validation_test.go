package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

var start = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestValidateStartLaunch(t *testing.T) {
	cases := []struct {
		name    string
		rq      apitype.StartLaunchRQ
		errType *rperrors.ErrorType
	}{
		{
			name: "valid",
			rq:   apitype.StartLaunchRQ{Name: "nightly", StartTime: apitype.NewTime(start)},
		},
		{
			name:    "blank name",
			rq:      apitype.StartLaunchRQ{Name: "  ", StartTime: apitype.NewTime(start)},
			errType: &rperrors.IncorrectRequest,
		},
		{
			name:    "name too long",
			rq:      apitype.StartLaunchRQ{Name: strings.Repeat("a", 257), StartTime: apitype.NewTime(start)},
			errType: &rperrors.IncorrectRequest,
		},
		{
			name:    "missing start time",
			rq:      apitype.StartLaunchRQ{Name: "nightly"},
			errType: &rperrors.IncorrectRequest,
		},
		{
			name:    "unknown mode",
			rq:      apitype.StartLaunchRQ{Name: "nightly", StartTime: apitype.NewTime(start), Mode: "FAST"},
			errType: &rperrors.IncorrectRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateStartLaunch(tc.rq)
			if tc.errType == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, rperrors.Is(err, *tc.errType), "unexpected error %v", err)
		})
	}
}

func TestCanModifyLaunch(t *testing.T) {
	launch := &models.Launch{ProjectID: 1, UserID: 10}
	project := &auth.ProjectDetails{ID: 1, Name: "demo", Role: apitype.ProjectRoleMember}

	assert.True(t, canModifyLaunch(&auth.ReportPortalUser{ID: 10}, project, launch))
	assert.False(t, canModifyLaunch(&auth.ReportPortalUser{ID: 11}, project, launch))
	assert.True(t, canModifyLaunch(&auth.ReportPortalUser{ID: 11},
		&auth.ProjectDetails{ID: 1, Role: apitype.ProjectRoleProjectManager}, launch))
	assert.False(t, canModifyLaunch(&auth.ReportPortalUser{ID: 10},
		&auth.ProjectDetails{ID: 2, Role: apitype.ProjectRoleProjectManager}, launch))
	assert.True(t, canModifyLaunch(&auth.ReportPortalUser{ID: 99, Role: apitype.UserRoleAdministrator},
		&auth.ProjectDetails{ID: 2}, launch))
}

func TestValidateFinishLaunch(t *testing.T) {
	owner := &auth.ReportPortalUser{ID: 10}
	project := &auth.ProjectDetails{ID: 1, Role: apitype.ProjectRoleMember}
	inProgress := &models.Launch{UUID: "l1", ProjectID: 1, UserID: 10, Status: string(apitype.StatusInProgress), StartTime: start}

	cases := []struct {
		name    string
		user    *auth.ReportPortalUser
		launch  *models.Launch
		rq      apitype.FinishExecutionRQ
		errType *rperrors.ErrorType
	}{
		{
			name:   "valid",
			user:   owner,
			launch: inProgress,
			rq:     apitype.FinishExecutionRQ{EndTime: apitype.NewTime(start.Add(time.Minute)), Status: "passed"},
		},
		{
			name:    "not owner",
			user:    &auth.ReportPortalUser{ID: 11},
			launch:  inProgress,
			rq:      apitype.FinishExecutionRQ{EndTime: apitype.NewTime(start.Add(time.Minute))},
			errType: &rperrors.AccessDenied,
		},
		{
			name:    "already finished",
			user:    owner,
			launch:  &models.Launch{UUID: "l2", ProjectID: 1, UserID: 10, Status: string(apitype.StatusPassed), StartTime: start},
			rq:      apitype.FinishExecutionRQ{EndTime: apitype.NewTime(start.Add(time.Minute))},
			errType: &rperrors.FinishLaunchNotAllowed,
		},
		{
			name:    "end before start",
			user:    owner,
			launch:  inProgress,
			rq:      apitype.FinishExecutionRQ{EndTime: apitype.NewTime(start.Add(-time.Minute))},
			errType: &rperrors.FinishTimeEarlierThanStart,
		},
		{
			name:    "in progress status",
			user:    owner,
			launch:  inProgress,
			rq:      apitype.FinishExecutionRQ{EndTime: apitype.NewTime(start.Add(time.Minute)), Status: "IN_PROGRESS"},
			errType: &rperrors.IncorrectFinishStatus,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFinishLaunch(tc.user, project, tc.launch, tc.rq)
			if tc.errType == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, rperrors.Is(err, *tc.errType), "unexpected error %v", err)
		})
	}
}

func TestValidateItems(t *testing.T) {
	_, err := validateStartItem(apitype.StartTestItemRQ{Name: "step", StartTime: apitype.NewTime(start), Type: "widget"})
	assert.True(t, rperrors.Is(err, rperrors.UnsupportedTestItemType))

	itemType, err := validateStartItem(apitype.StartTestItemRQ{Name: "step", StartTime: apitype.NewTime(start), Type: "step"})
	require.NoError(t, err)
	assert.Equal(t, apitype.ItemTypeStep, itemType)

	parent := &models.TestItem{UUID: "p", StartTime: start, Status: string(apitype.StatusInProgress)}
	rq := apitype.StartTestItemRQ{Name: "child", StartTime: apitype.NewTime(start.Add(time.Second))}
	assert.NoError(t, validateChildItem(parent, false, rq))
	assert.True(t, rperrors.Is(validateChildItem(parent, true, rq), rperrors.StartItemNotAllowed))

	early := apitype.StartTestItemRQ{Name: "child", StartTime: apitype.NewTime(start.Add(-time.Second))}
	assert.True(t, rperrors.Is(validateChildItem(parent, false, early), rperrors.ChildStartTimeEarlier))

	owner := &auth.ReportPortalUser{ID: 10}
	launch := &models.Launch{UserID: 10}
	finish := apitype.FinishTestItemRQ{EndTime: apitype.NewTime(start.Add(time.Minute))}
	assert.True(t, rperrors.Is(validateFinishItem(owner, launch, parent, false, false, finish), rperrors.AmbiguousTestItemStatus))
	assert.NoError(t, validateFinishItem(owner, launch, parent, false, true, finish))
	assert.True(t, rperrors.Is(validateFinishItem(&auth.ReportPortalUser{ID: 3}, launch, parent, true, false, finish),
		rperrors.FinishItemNotAllowed))
}

func TestValidateSaveLog(t *testing.T) {
	assert.True(t, rperrors.Is(validateSaveLog(apitype.SaveLogRQ{ItemUUID: "i"}), rperrors.BadSaveLogRequest))
	assert.True(t, rperrors.Is(validateSaveLog(apitype.SaveLogRQ{LogTime: apitype.NewTime(start)}), rperrors.BadSaveLogRequest))
	assert.NoError(t, validateSaveLog(apitype.SaveLogRQ{LogTime: apitype.NewTime(start), LaunchUUID: "l"}))
}
