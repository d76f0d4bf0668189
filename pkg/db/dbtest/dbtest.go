// Package dbtest connects tests to a scratch postgres database and seeds the user and
// project they report into.
package dbtest

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
)

// DSNEnv names the variable holding the database tests run against.
const DSNEnv = "RP_E2E_DSN"

// Connect opens the test database and brings its schema up to date. The test is skipped when
// no database is configured.
func Connect(t *testing.T) *db.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s environment variable not set", DSNEnv)
	}

	dbc, err := db.New(dsn, logger.Warn)
	require.NoError(t, err, "error connecting to db")
	require.NoError(t, dbc.UpdateSchema(), "error updating schema")

	// Simple check that someone doesn't accidentally run the tests against a production db.
	var launches int64
	dbc.DB.Model(&models.Launch{}).Count(&launches)
	require.Less(t, int(launches), 1000, "found too many launches in db, possible indicator the tests run against a real instance")

	return dbc
}

// Project is a project seeded with the default issue types and attributes, owned by a
// member with the project manager role.
type Project struct {
	User       models.User
	Project    models.Project
	IssueTypes map[string]models.IssueType
}

// NewProject creates a uniquely named user and project. Everything stored under the project
// is removed when the test ends.
func NewProject(t *testing.T, dbc *db.DB) *Project {
	t.Helper()
	suffix := uuid.NewString()[:8]
	p := &Project{IssueTypes: map[string]models.IssueType{}}

	p.User = models.User{
		Login:  "tester_" + suffix,
		Email:  "tester_" + suffix + "@example.com",
		Role:   string(apitype.UserRoleUser),
		Type:   "INTERNAL",
		Active: true,
	}
	require.NoError(t, dbc.DB.Create(&p.User).Error)

	p.Project = models.Project{Name: "project_" + suffix, ProjectType: models.ProjectTypeInternal}
	require.NoError(t, dbc.DB.Omit("Attributes", "IssueTypes", "Users", "SenderCases").Create(&p.Project).Error)

	member := models.ProjectUser{ProjectID: p.Project.ID, UserID: p.User.ID, Role: string(apitype.ProjectRoleProjectManager)}
	require.NoError(t, dbc.DB.Omit("Project", "User").Create(&member).Error)

	issueTypes := db.DefaultIssueTypes(p.Project.ID)
	require.NoError(t, dbc.DB.Create(&issueTypes).Error)
	for _, it := range issueTypes {
		p.IssueTypes[it.Locator] = it
	}

	attrs := make([]models.ProjectAttribute, 0, len(db.DefaultProjectAttributes()))
	for k, v := range db.DefaultProjectAttributes() {
		attrs = append(attrs, models.ProjectAttribute{ProjectID: p.Project.ID, Key: k, Value: v})
	}
	require.NoError(t, dbc.DB.Create(&attrs).Error)

	t.Cleanup(func() {
		if err := p.remove(dbc.DB); err != nil {
			t.Logf("error cleaning up project %s: %v", p.Project.Name, err)
		}
	})
	return p
}

func (p *Project) remove(dbc *gorm.DB) error {
	return dbc.Transaction(func(tx *gorm.DB) error {
		var launchIDs []uint
		if res := tx.Model(&models.Launch{}).Where("project_id = ?", p.Project.ID).Pluck("id", &launchIDs); res.Error != nil {
			return res.Error
		}
		if _, err := query.DeleteLaunches(tx, launchIDs); err != nil {
			return err
		}
		for _, model := range []interface{}{&models.ProjectAttribute{}, &models.IssueType{}, &models.SenderCase{},
			&models.ProjectUser{}, &models.Activity{}} {
			if res := tx.Where("project_id = ?", p.Project.ID).Delete(model); res.Error != nil {
				return res.Error
			}
		}
		if res := tx.Unscoped().Delete(&p.Project); res.Error != nil {
			return res.Error
		}
		return tx.Unscoped().Delete(&p.User).Error
	})
}

// Caller is the project owner as an authenticated user.
func (p *Project) Caller() *auth.ReportPortalUser {
	details := p.Details()
	return &auth.ReportPortalUser{
		ID:       p.User.ID,
		Login:    p.User.Login,
		Email:    p.User.Email,
		Role:     apitype.UserRoleUser,
		Projects: map[string]auth.ProjectDetails{p.Project.Name: *details},
	}
}

// Details is the project as seen by its owner.
func (p *Project) Details() *auth.ProjectDetails {
	return &auth.ProjectDetails{ID: p.Project.ID, Name: p.Project.Name, Role: apitype.ProjectRoleProjectManager}
}

// SetAttribute overrides a project attribute.
func (p *Project) SetAttribute(t *testing.T, dbc *db.DB, key, value string) {
	t.Helper()
	res := dbc.DB.Model(&models.ProjectAttribute{}).Where("project_id = ? AND key = ?", p.Project.ID, key).Update("value", value)
	require.NoError(t, res.Error)
}
