package auth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Authenticator{signingKey: []byte("secret"), now: func() time.Time { return now }}

	token, err := a.IssueToken("jdoe", time.Hour)
	require.NoError(t, err)
	assert.True(t, looksLikeJWT(token))

	login, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", login)

	other := &Authenticator{signingKey: []byte("other"), now: a.now}
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	later := &Authenticator{signingKey: []byte("secret"), now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = later.ParseToken(token)
	assert.Error(t, err)

	_, err = (&Authenticator{now: time.Now}).IssueToken("jdoe", time.Hour)
	assert.Error(t, err)
}

func TestAPIKeys(t *testing.T) {
	key, hash, err := GenerateAPIKey("ci agent")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ci-agent_"))
	assert.False(t, looksLikeJWT(key))
	assert.Equal(t, hash, HashAPIKey(key))
	assert.Len(t, hash, 64)

	key2, _, err := GenerateAPIKey("ci agent")
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("erebus")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "erebus"))
	assert.False(t, CheckPassword(hash, "Erebus"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/test/launch", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(req))

	req = httptest.NewRequest("GET", "/api/v1/test/data/1?access_token=key_123", nil)
	assert.Equal(t, "key_123", bearerToken(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", bearerToken(req))
}

func TestRoles(t *testing.T) {
	user := NewReportPortalUser(&models.User{
		Model: models.Model{ID: 3},
		Login: "jdoe",
		Role:  string(apitype.UserRoleUser),
		Projects: []models.ProjectUser{
			{ProjectID: 7, Role: string(apitype.ProjectRoleMember), Project: models.Project{Name: "demo"}},
		},
	})
	details := user.Projects["demo"]
	assert.Equal(t, uint(7), details.ID)

	assert.NoError(t, RequireProjectRole(user, &details, apitype.ProjectRoleCustomer))
	assert.NoError(t, RequireProjectRole(user, &details, apitype.ProjectRoleMember))
	err := RequireProjectRole(user, &details, apitype.ProjectRoleProjectManager)
	assert.True(t, rperrors.Is(err, rperrors.AccessDenied))
	assert.True(t, rperrors.Is(RequireAdmin(user), rperrors.AccessDenied))

	admin := &ReportPortalUser{Login: "superadmin", Role: apitype.UserRoleAdministrator}
	assert.NoError(t, RequireProjectRole(admin, nil, apitype.ProjectRoleProjectManager))
	assert.NoError(t, RequireAdmin(admin))

	ctx := WithUser(context.Background(), user)
	assert.Same(t, user, UserFromContext(ctx))
	assert.Nil(t, UserFromContext(context.Background()))
}
