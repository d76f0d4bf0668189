// Package bts manages project integrations and posts tickets to Jira.
package bts

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	AuthBasic  = "BASIC"
	AuthBearer = "BEARER"
)

// JiraParams are the parameters of a jira integration.
type JiraParams struct {
	URL      string `json:"url"`
	Project  string `json:"project"`
	AuthType string `json:"authType"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// EmailParams are the parameters of an SMTP integration.
type EmailParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	SSL      bool   `json:"sslEnabled,omitempty"`
}

func (p JiraParams) validate() error {
	u, err := url.Parse(p.URL)
	if p.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return rperrors.New(rperrors.IncorrectRequest, "Jira integration requires a valid url.")
	}
	if strings.TrimSpace(p.Project) == "" {
		return rperrors.New(rperrors.IncorrectRequest, "Jira integration requires a project key.")
	}
	switch strings.ToUpper(p.AuthType) {
	case AuthBasic:
		if p.Username == "" || p.Password == "" {
			return rperrors.New(rperrors.IncorrectAuthType, "Username and password are required for BASIC authentication.")
		}
	case AuthBearer:
		if p.Token == "" {
			return rperrors.New(rperrors.IncorrectAuthType, "Token is required for BEARER authentication.")
		}
	default:
		return rperrors.New(rperrors.IncorrectAuthType, "Unknown authentication type '"+p.AuthType+"'.")
	}
	return nil
}

func (p EmailParams) validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return rperrors.New(rperrors.IncorrectRequest, "Email integration requires a host.")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return rperrors.New(rperrors.IncorrectRequest, "Email integration port "+strconv.Itoa(p.Port)+" is out of range.")
	}
	return nil
}

// decodeParams converts free-form parameters to the typed parameters of an integration type
// and validates them.
func decodeParams(integrationType string, params map[string]interface{}) (interface{}, error) {
	j, err := models.ToJSONB(params)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	switch integrationType {
	case models.IntegrationTypeJira:
		var p JiraParams
		if err := models.FromJSONB(j, &p); err != nil {
			return nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		p.AuthType = strings.ToUpper(p.AuthType)
		return p, p.validate()
	case models.IntegrationTypeEmail:
		var p EmailParams
		if err := models.FromJSONB(j, &p); err != nil {
			return nil, rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		return p, p.validate()
	}
	return nil, rperrors.New(rperrors.IncorrectRequest, "Unknown integration type '"+integrationType+"'.")
}

// mergeSecrets keeps the stored secrets when an update omits them, since they are never sent to
// clients.
func mergeSecrets(stored, updated map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(updated))
	for k, v := range updated {
		merged[k] = v
	}
	for _, k := range []string{"password", "token", "accessToken"} {
		if _, ok := merged[k]; !ok {
			if v, ok := stored[k]; ok {
				merged[k] = v
			}
		}
	}
	return merged
}

// Manager owns the integrations of projects and the operations against their systems.
type Manager struct {
	dbc        *db.DB
	recorder   *activities.Recorder
	httpClient *http.Client
}

func NewManager(dbc *db.DB, recorder *activities.Recorder, httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Manager{dbc: dbc, recorder: recorder, httpClient: httpClient}
}

func ListIntegrations(dbc *gorm.DB, project *auth.ProjectDetails) ([]apitype.IntegrationResource, error) {
	var integrations []models.Integration
	if res := dbc.Where("project_id = ?", project.ID).Order("id").Find(&integrations); res.Error != nil {
		return nil, res.Error
	}
	result := make([]apitype.IntegrationResource, 0, len(integrations))
	for _, i := range integrations {
		result = append(result, api.IntegrationResource(i))
	}
	return result, nil
}

// FindIntegration returns an integration of the project or INTEGRATION_NOT_FOUND.
func FindIntegration(dbc *gorm.DB, projectID, id uint) (*models.Integration, error) {
	var integration models.Integration
	res := dbc.Where("project_id = ? AND id = ?", projectID, id).Limit(1).Find(&integration)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, rperrors.New(rperrors.IntegrationNotFound, strconv.FormatUint(uint64(id), 10))
	}
	return &integration, nil
}

// EnabledIntegration returns the first enabled integration of a type, or nil.
func EnabledIntegration(dbc *gorm.DB, projectID uint, integrationType string) (*models.Integration, error) {
	var integration models.Integration
	res := dbc.Where("project_id = ? AND type = ? AND enabled", projectID, integrationType).Order("id").
		Limit(1).Find(&integration)
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return &integration, nil
}

func GetIntegration(dbc *gorm.DB, project *auth.ProjectDetails, id uint) (*apitype.IntegrationResource, error) {
	integration, err := FindIntegration(dbc, project.ID, id)
	if err != nil {
		return nil, err
	}
	res := api.IntegrationResource(*integration)
	return &res, nil
}

func (m *Manager) CreateIntegration(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	integrationType string, rq apitype.IntegrationRQ) (*apitype.EntryCreatedRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	integrationType = strings.ToLower(integrationType)
	name := strings.TrimSpace(rq.Name)
	if name == "" {
		name = integrationType
	}
	if _, err := decodeParams(integrationType, rq.Params); err != nil {
		return nil, err
	}
	params, err := models.ToJSONB(rq.Params)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	integration := &models.Integration{
		ProjectID: project.ID,
		Name:      name,
		Type:      integrationType,
		Enabled:   rq.Enabled == nil || *rq.Enabled,
		Params:    params,
		Creator:   user.Login,
	}
	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if res := tx.Model(&models.Integration{}).Where("project_id = ? AND type = ? AND name = ?",
			project.ID, integrationType, name).Count(&count); res.Error != nil {
			return res.Error
		}
		if count > 0 {
			return rperrors.New(rperrors.IntegrationAlreadyExists, name)
		}
		return tx.Create(integration).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionCreateIntegr, activities.ObjectIntegration,
		integration.ID, integration.Name, map[string]interface{}{"type": integrationType})
	return &apitype.EntryCreatedRS{ID: integration.ID}, nil
}

func (m *Manager) UpdateIntegration(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint, rq apitype.IntegrationRQ) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	var integration *models.Integration
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		integration, err = FindIntegration(tx, project.ID, id)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if name := strings.TrimSpace(rq.Name); name != "" && name != integration.Name {
			var count int64
			if res := tx.Model(&models.Integration{}).Where("project_id = ? AND type = ? AND name = ? AND id <> ?",
				project.ID, integration.Type, name, id).Count(&count); res.Error != nil {
				return res.Error
			}
			if count > 0 {
				return rperrors.New(rperrors.IntegrationAlreadyExists, name)
			}
			updates["name"] = name
			integration.Name = name
		}
		if rq.Enabled != nil {
			updates["enabled"] = *rq.Enabled
		}
		if rq.Params != nil {
			stored := map[string]interface{}{}
			if err := models.FromJSONB(integration.Params, &stored); err != nil {
				return errors.WithStack(err)
			}
			params := mergeSecrets(stored, rq.Params)
			if _, err := decodeParams(integration.Type, params); err != nil {
				return err
			}
			j, err := models.ToJSONB(params)
			if err != nil {
				return errors.WithStack(err)
			}
			updates["params"] = j
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Integration{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateIntegr, activities.ObjectIntegration,
		integration.ID, integration.Name, nil)
	return &apitype.OperationCompletionRS{Message: "Integration with ID = '" + strconv.FormatUint(uint64(id), 10) +
		"' has been successfully updated."}, nil
}

func (m *Manager) DeleteIntegration(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	dbc := m.dbc.DB.WithContext(ctx)
	integration, err := FindIntegration(dbc, project.ID, id)
	if err != nil {
		return nil, err
	}
	if res := dbc.Unscoped().Delete(&models.Integration{}, integration.ID); res.Error != nil {
		return nil, res.Error
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionDeleteIntegr, activities.ObjectIntegration,
		integration.ID, integration.Name, nil)
	return &apitype.OperationCompletionRS{Message: "Integration with ID = '" + strconv.FormatUint(uint64(id), 10) +
		"' has been successfully deleted."}, nil
}
