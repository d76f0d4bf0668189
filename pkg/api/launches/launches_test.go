package launches

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
)

func TestCanManage(t *testing.T) {
	launch := &models.Launch{UserID: 3}
	member := &auth.ProjectDetails{Role: apitype.ProjectRoleMember}
	manager := &auth.ProjectDetails{Role: apitype.ProjectRoleProjectManager}

	assert.True(t, canManage(&auth.ReportPortalUser{ID: 3}, member, launch))
	assert.False(t, canManage(&auth.ReportPortalUser{ID: 4}, member, launch))
	assert.True(t, canManage(&auth.ReportPortalUser{ID: 4}, manager, launch))
	assert.True(t, canManage(&auth.ReportPortalUser{ID: 4, Role: apitype.UserRoleAdministrator}, member, launch))
}
