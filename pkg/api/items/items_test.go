package items

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestGroupHistory(t *testing.T) {
	items := []apitype.TestItemResource{
		{ID: 1, UniqueID: "auto:b", LaunchID: 10},
		{ID: 2, UniqueID: "auto:a", LaunchID: 10},
		{ID: 3, UniqueID: "auto:a", LaunchID: 12},
		{ID: 4, UniqueID: "auto:a", LaunchID: 11},
	}

	history := groupHistory(items, []uint{12, 11, 10})
	require.Len(t, history, 2)
	assert.Equal(t, "auto:a", history[0].GroupingField)
	ids := []uint{}
	for _, r := range history[0].Resources {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint{3, 4, 2}, ids)
	assert.Equal(t, "auto:b", history[1].GroupingField)
}

func TestTicketModels(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	submitted := apitype.NewTime(now.Add(-time.Hour))
	tickets := ticketModels(&auth.ReportPortalUser{ID: 5}, []apitype.ExternalSystemIssue{
		{TicketID: "RP-1", URL: "https://jira/browse/RP-1", BtsURL: "https://jira", BtsProject: "RP"},
		{TicketID: "RP-2", URL: "https://jira/browse/RP-2", BtsURL: "https://jira", BtsProject: "RP", SubmitDate: &submitted},
	}, now)

	require.Len(t, tickets, 2)
	assert.Equal(t, now, tickets[0].SubmitDate)
	assert.Equal(t, now.Add(-time.Hour), tickets[1].SubmitDate)
	assert.Equal(t, uint(5), tickets[1].SubmitterID)
}

func TestValidateTickets(t *testing.T) {
	assert.NoError(t, validateTickets([]apitype.ExternalSystemIssue{{TicketID: "A-1", URL: "u", BtsURL: "b", BtsProject: "p"}}))
	assert.True(t, rperrors.Is(validateTickets([]apitype.ExternalSystemIssue{{TicketID: "A-1"}}), rperrors.BadRequest))
}

func TestCanModify(t *testing.T) {
	launch := &models.Launch{UserID: 1}
	assert.True(t, canModify(&auth.ReportPortalUser{ID: 1}, &auth.ProjectDetails{Role: apitype.ProjectRoleMember}, launch))
	assert.False(t, canModify(&auth.ReportPortalUser{ID: 2}, &auth.ProjectDetails{Role: apitype.ProjectRoleMember}, launch))
	assert.True(t, canModify(&auth.ReportPortalUser{ID: 2}, &auth.ProjectDetails{Role: apitype.ProjectRoleProjectManager}, launch))
}
