package bts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestDecodeParams(t *testing.T) {
	cases := []struct {
		name            string
		integrationType string
		params          map[string]interface{}
		errType         *rperrors.ErrorType
	}{
		{
			name:            "basic jira",
			integrationType: models.IntegrationTypeJira,
			params:          map[string]interface{}{"url": "https://jira.local", "project": "RP", "authType": "basic", "username": "u", "password": "p"},
		},
		{
			name:            "bearer jira without token",
			integrationType: models.IntegrationTypeJira,
			params:          map[string]interface{}{"url": "https://jira.local", "project": "RP", "authType": "BEARER"},
			errType:         &rperrors.IncorrectAuthType,
		},
		{
			name:            "jira without url",
			integrationType: models.IntegrationTypeJira,
			params:          map[string]interface{}{"project": "RP", "authType": "BEARER", "token": "t"},
			errType:         &rperrors.IncorrectRequest,
		},
		{
			name:            "unknown auth",
			integrationType: models.IntegrationTypeJira,
			params:          map[string]interface{}{"url": "https://jira.local", "project": "RP", "authType": "NTLM"},
			errType:         &rperrors.IncorrectAuthType,
		},
		{
			name:            "email",
			integrationType: models.IntegrationTypeEmail,
			params:          map[string]interface{}{"host": "smtp.local", "port": 25},
		},
		{
			name:            "email without port",
			integrationType: models.IntegrationTypeEmail,
			params:          map[string]interface{}{"host": "smtp.local"},
			errType:         &rperrors.IncorrectRequest,
		},
		{
			name:            "unknown type",
			integrationType: "slack",
			params:          map[string]interface{}{},
			errType:         &rperrors.IncorrectRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeParams(tc.integrationType, tc.params)
			if tc.errType == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, rperrors.Is(err, *tc.errType), "unexpected error %v", err)
		})
	}
}

func TestMergeSecrets(t *testing.T) {
	stored := map[string]interface{}{"url": "https://old", "password": "secret", "token": "t"}
	merged := mergeSecrets(stored, map[string]interface{}{"url": "https://new", "token": "new"})
	assert.Equal(t, map[string]interface{}{"url": "https://new", "password": "secret", "token": "new"}, merged)
}

func TestBuildIssue(t *testing.T) {
	p := JiraParams{URL: "https://jira.local", Project: "RP"}
	rq := apitype.PostTicketRQ{
		IncludeLogs:     true,
		IncludeComments: true,
		Fields: []apitype.PostFormField{
			{ID: "summary", Value: []string{"Login", "fails"}, IsRequired: true},
			{ID: "description", Value: []string{"Broken since 5.1"}},
			{ID: "issuetype", Value: []string{"Task"}},
			{ID: "priority", Value: []string{"Major"}},
			{ID: "components", Value: []string{"ui", "api"}},
			{ID: "customfield_100", FieldType: "array", Value: []string{"a", "b"}},
			{ID: "customfield_200", Value: []string{"x"}},
		},
	}
	links := []backLink{{url: "http://rp/item/1", comment: "flaky on CI", logs: []string{"ERROR NPE"}}}

	issue, err := buildIssue(p, rq, links)
	require.NoError(t, err)
	f := issue.Fields
	assert.Equal(t, "RP", f.Project.Key)
	assert.Equal(t, "Login fails", f.Summary)
	assert.Equal(t, "Task", f.Type.Name)
	assert.Equal(t, "Major", f.Priority.Name)
	assert.Len(t, f.Components, 2)
	assert.Equal(t, []string{"a", "b"}, f.Unknowns["customfield_100"])
	assert.Equal(t, "x", f.Unknowns["customfield_200"])
	assert.True(t, strings.HasPrefix(f.Description, "Broken since 5.1\n"))
	assert.Contains(t, f.Description, "[Link to defect|http://rp/item/1]")
	assert.Contains(t, f.Description, "flaky on CI")
	assert.Contains(t, f.Description, "{noformat}\nERROR NPE\n{noformat}")

	_, err = buildIssue(p, apitype.PostTicketRQ{Fields: []apitype.PostFormField{{ID: "summary", FieldName: "Summary", IsRequired: true}}}, nil)
	assert.True(t, rperrors.Is(err, rperrors.UnablePostTicket))
}

func TestJiraCalls(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/api/2/project/RP":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"key": "RP", "issueTypes": []map[string]string{{"name": "Bug"}}})
		case "/rest/api/2/issue/RP-7":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"key":    "RP-7",
				"fields": map[string]interface{}{"summary": "Login fails", "status": map[string]string{"name": "Open"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errorMessages": ["Issue does not exist"]}`))
		}
	}))
	defer server.Close()

	p := JiraParams{URL: server.URL, Project: "RP", AuthType: AuthBearer, Token: "abc"}
	require.NoError(t, testConnection(context.Background(), p, server.Client()))
	assert.Equal(t, "Bearer abc", authHeader)

	ticket, err := getTicket(context.Background(), p, server.Client(), "RP-7")
	require.NoError(t, err)
	assert.Equal(t, apitype.TicketResource{ID: "RP-7", Summary: "Login fails", Status: "Open", URL: server.URL + "/browse/RP-7"}, *ticket)

	_, err = getTicket(context.Background(), p, server.Client(), "RP-8")
	assert.True(t, rperrors.Is(err, rperrors.TicketNotFound))

	basic := JiraParams{URL: server.URL, Project: "XX", AuthType: AuthBasic, Username: "u", Password: "p"}
	err = testConnection(context.Background(), basic, server.Client())
	assert.True(t, rperrors.Is(err, rperrors.UnableInteractWithIntegr))
	assert.True(t, strings.HasPrefix(authHeader, "Basic "))
}
