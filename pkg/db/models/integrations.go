package models

import "github.com/jackc/pgtype"

const (
	IntegrationTypeJira  = "jira"
	IntegrationTypeEmail = "email"
)

// Integration connects a project to an external system. Params is free-form per type, for
// jira: url, project, authType, username, password, token.
type Integration struct {
	Model
	ProjectID uint         `gorm:"not null;index"`
	Name      string       `gorm:"not null"`
	Type      string       `gorm:"not null"`
	Enabled   bool         `gorm:"not null;default:true"`
	Params    pgtype.JSONB `gorm:"type:jsonb"`
	Creator   string
}
