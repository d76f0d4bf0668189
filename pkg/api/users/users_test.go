package users

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestValidateCreate(t *testing.T) {
	valid := apitype.CreateUserRQ{Login: "jane.doe", Password: "secret", FullName: "Jane Doe", Email: "jane@example.com"}
	assert.NoError(t, validateCreate(valid))

	cases := map[string]func(rq *apitype.CreateUserRQ){
		"bad login":      func(rq *apitype.CreateUserRQ) { rq.Login = "jane doe" },
		"short password": func(rq *apitype.CreateUserRQ) { rq.Password = "abc" },
		"bad email":      func(rq *apitype.CreateUserRQ) { rq.Email = "Jane <jane@example.com>" },
		"no name":        func(rq *apitype.CreateUserRQ) { rq.FullName = " " },
		"unknown role":   func(rq *apitype.CreateUserRQ) { rq.AccountRole = "ROOT" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rq := valid
			mutate(&rq)
			assert.True(t, rperrors.Is(validateCreate(rq), rperrors.IncorrectRequest))
		})
	}
}

func TestUserResource(t *testing.T) {
	u := models.User{Login: "jane", Email: "jane@example.com", Role: "USER", Type: "INTERNAL", Active: true}
	u.ID = 4
	u.Projects = []models.ProjectUser{
		{Role: "PROJECT_MANAGER", Project: models.Project{Name: "jane_personal", ProjectType: models.ProjectTypePersonal}},
		{Role: "MEMBER", Project: models.Project{Name: "demo", ProjectType: models.ProjectTypeInternal}},
	}

	res := userResource(u)
	assert.Equal(t, "jane", res.UserID)
	assert.Equal(t, apitype.UserRoleUser, res.UserRole)
	assert.Equal(t, apitype.AssignedProject{ProjectRole: apitype.ProjectRoleProjectManager, EntryType: "PERSONAL"},
		res.AssignedProjects["jane_personal"])
	assert.Equal(t, apitype.ProjectRoleMember, res.AssignedProjects["demo"].ProjectRole)
}

func TestApiKeyResource(t *testing.T) {
	used := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	k := models.ApiKey{Name: "ci", UserID: 4, LastUsedAt: &used}
	k.ID = 9

	rs := apiKeyResource(k)
	assert.Equal(t, uint(9), rs.ID)
	assert.Empty(t, rs.APIKey)
	if assert.NotNil(t, rs.LastUsed) {
		assert.True(t, rs.LastUsed.Equal(used))
	}
}
