package db

import (
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
)

// DefaultIssueTypes returns the five predefined defect types for a project.
func DefaultIssueTypes(projectID uint) []models.IssueType {
	return []models.IssueType{
		{ProjectID: projectID, IssueGroup: string(apitype.IssueGroupToInvestigate), Locator: "ti001", LongName: "To Investigate", ShortName: "TI", Color: "#ffb743"},
		{ProjectID: projectID, IssueGroup: string(apitype.IssueGroupProductBug), Locator: "pb001", LongName: "Product Bug", ShortName: "PB", Color: "#ec3900"},
		{ProjectID: projectID, IssueGroup: string(apitype.IssueGroupAutomationBug), Locator: "ab001", LongName: "Automation Bug", ShortName: "AB", Color: "#f7d63e"},
		{ProjectID: projectID, IssueGroup: string(apitype.IssueGroupSystemIssue), Locator: "si001", LongName: "System Issue", ShortName: "SI", Color: "#0274d1"},
		{ProjectID: projectID, IssueGroup: string(apitype.IssueGroupNoDefect), Locator: "nd001", LongName: "No Defect", ShortName: "ND", Color: "#777777"},
	}
}

// Project attribute keys.
const (
	AttrInterruptJobTime = "job.interruptJobTime"
	AttrKeepLaunches     = "job.keepLaunches"
	AttrKeepLogs         = "job.keepLogs"
	AttrKeepScreenshots  = "job.keepScreenshots"
	AttrAutoAnalyze      = "analyzer.isAutoAnalyzerEnabled"
	AttrMinShouldMatch   = "analyzer.minShouldMatch"
	AttrNotifications    = "notifications.enabled"
)

// DefaultProjectAttributes are the attributes of a freshly created project.
func DefaultProjectAttributes() map[string]string {
	return map[string]string{
		AttrInterruptJobTime: "1 day",
		AttrKeepLaunches:     "3 months",
		AttrKeepLogs:         "3 months",
		AttrKeepScreenshots:  "2 weeks",
		AttrAutoAnalyze:      "false",
		AttrMinShouldMatch:   "95",
		AttrNotifications:    "false",
	}
}
