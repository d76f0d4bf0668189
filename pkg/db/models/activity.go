package models

import (
	"time"

	"github.com/jackc/pgtype"
)

// Activity is an audit record of a user action within a project.
type Activity struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time    `json:"createdAt" gorm:"autoCreateTime;index"`
	ProjectID  uint         `json:"projectId" gorm:"not null;index"`
	UserID     uint         `json:"userId"`
	Username   string       `json:"user" gorm:"not null"`
	Action     string       `json:"action" gorm:"not null"`
	ObjectType string       `json:"objectType" gorm:"not null"`
	ObjectID   uint         `json:"objectId"`
	ObjectName string       `json:"objectName"`
	Details    pgtype.JSONB `json:"details" gorm:"type:jsonb"`
}

type ActivityAction string

const (
	ActionStartLaunch     ActivityAction = "startLaunch"
	ActionFinishLaunch    ActivityAction = "finishLaunch"
	ActionDeleteLaunch    ActivityAction = "deleteLaunch"
	ActionMergeLaunches   ActivityAction = "mergeLaunches"
	ActionUpdateLaunch    ActivityAction = "updateLaunch"
	ActionUpdateItem      ActivityAction = "updateItem"
	ActionLinkIssue       ActivityAction = "linkIssue"
	ActionUnlinkIssue     ActivityAction = "unlinkIssue"
	ActionPostIssue       ActivityAction = "postIssue"
	ActionAnalyzeItem     ActivityAction = "analyzeItem"
	ActionCreateFilter    ActivityAction = "createFilter"
	ActionUpdateFilter    ActivityAction = "updateFilter"
	ActionDeleteFilter    ActivityAction = "deleteFilter"
	ActionCreateDashboard ActivityAction = "createDashboard"
	ActionUpdateDashboard ActivityAction = "updateDashboard"
	ActionDeleteDashboard ActivityAction = "deleteDashboard"
	ActionCreateWidget    ActivityAction = "createWidget"
	ActionUpdateWidget    ActivityAction = "updateWidget"
	ActionDeleteWidget    ActivityAction = "deleteWidget"
	ActionCreateIntegr    ActivityAction = "createIntegration"
	ActionUpdateIntegr    ActivityAction = "updateIntegration"
	ActionDeleteIntegr    ActivityAction = "deleteIntegration"
	ActionUpdateProject   ActivityAction = "updateProject"
	ActionCreateDefect    ActivityAction = "createDefect"
	ActionUpdateDefect    ActivityAction = "updateDefect"
	ActionDeleteDefect    ActivityAction = "deleteDefect"
)
