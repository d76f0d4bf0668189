package query

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
)

// ProjectByName loads a project with its attributes and issue types. A missing project
// returns nil without error.
func ProjectByName(dbc *db.DB, name string) (*models.Project, error) {
	var project models.Project
	res := dbc.DB.Preload("Attributes").Preload("IssueTypes").First(&project, "name = ?", name)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up project: %s", name)
		return nil, res.Error
	}
	return &project, nil
}

// ProjectByID is ProjectByName keyed by id.
func ProjectByID(dbc *db.DB, id uint) (*models.Project, error) {
	var project models.Project
	res := dbc.DB.Preload("Attributes").Preload("IssueTypes").First(&project, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up project: %d", id)
		return nil, res.Error
	}
	return &project, nil
}

// ProjectsWithAttributes lists all projects with their attributes loaded, for scheduled jobs.
func ProjectsWithAttributes(dbc *db.DB) ([]models.Project, error) {
	var projects []models.Project
	res := dbc.DB.Preload("Attributes").Order("id").Find(&projects)
	return projects, res.Error
}

// ProjectMembers returns memberships of a project with users loaded.
func ProjectMembers(dbc *db.DB, projectID uint) ([]models.ProjectUser, error) {
	var members []models.ProjectUser
	res := dbc.DB.Preload("User").Where("project_id = ?", projectID).Find(&members)
	return members, res.Error
}
