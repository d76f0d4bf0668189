package projects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestDefaultAttributes(t *testing.T) {
	attrs := DefaultAttributes(map[string]string{db.AttrKeepLogs: "1 month", "unknown": "x"})
	assert.Equal(t, "1 month", attrs[db.AttrKeepLogs])
	assert.Equal(t, "1 day", attrs[db.AttrInterruptJobTime])
	assert.NotContains(t, attrs, "unknown")
}

func TestProjectNamePattern(t *testing.T) {
	assert.True(t, projectNamePattern.MatchString("team_a-1"))
	assert.False(t, projectNamePattern.MatchString("ab"))
	assert.False(t, projectNamePattern.MatchString("team a"))
}

func TestPersonalProjectName(t *testing.T) {
	assert.Equal(t, "john_doe_personal", PersonalProjectName("John.Doe"))
}

func TestProjectResource(t *testing.T) {
	p := models.Project{Name: "demo", ProjectType: models.ProjectTypeInternal}
	p.ID = 3
	p.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.Attributes = []models.ProjectAttribute{{Key: db.AttrNotifications, Value: "true"}, {Key: db.AttrKeepLogs, Value: "1 month"}}
	p.IssueTypes = db.DefaultIssueTypes(3)
	for i := range p.IssueTypes {
		p.IssueTypes[i].ID = uint(i + 1)
	}
	p.IssueTypes = append(p.IssueTypes, models.IssueType{ID: 10, IssueGroup: string(apitype.IssueGroupProductBug), Locator: "pb_custom"})
	p.Users = []models.ProjectUser{
		{Role: string(apitype.ProjectRoleMember), User: models.User{Login: "zed"}},
		{Role: string(apitype.ProjectRoleProjectManager), User: models.User{Login: "amy"}},
	}

	res := projectResource(p)
	assert.Equal(t, "1 month", res.Configuration.Attributes[db.AttrKeepLogs])
	require.Len(t, res.Configuration.Subtypes[apitype.IssueGroupProductBug], 2)
	assert.Equal(t, "pb001", res.Configuration.Subtypes[apitype.IssueGroupProductBug][0].Locator)
	assert.Equal(t, "amy", res.Users[0].Login)
	require.NotNil(t, res.Configuration.EmailConfig)
	assert.True(t, res.Configuration.EmailConfig.Enabled)
}

func TestValidateSubType(t *testing.T) {
	assert.NoError(t, validateSubType(apitype.IssueGroupProductBug, "Flaky backend", "FB", "#aabbcc"))
	assert.True(t, rperrors.Is(validateSubType("UNKNOWN", "Flaky backend", "FB", "#aabbcc"), rperrors.IssueTypeNotFound))
	assert.True(t, rperrors.Is(validateSubType(apitype.IssueGroupProductBug, "ab", "FB", "#aabbcc"), rperrors.IncorrectRequest))
	assert.True(t, rperrors.Is(validateSubType(apitype.IssueGroupProductBug, "Flaky", "FLAKY", "#aabbcc"), rperrors.IncorrectRequest))
	assert.True(t, rperrors.Is(validateSubType(apitype.IssueGroupProductBug, "Flaky", "FB", "red"), rperrors.IncorrectRequest))
}

func TestIsDefaultType(t *testing.T) {
	assert.True(t, isDefaultType(models.IssueType{IssueGroup: string(apitype.IssueGroupSystemIssue), Locator: "si001"}))
	assert.False(t, isDefaultType(models.IssueType{IssueGroup: string(apitype.IssueGroupSystemIssue), Locator: "si_x1"}))
	assert.Equal(t, "nd", groupPrefix(apitype.IssueGroupNoDefect))
}
