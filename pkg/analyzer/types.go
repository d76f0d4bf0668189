package analyzer

import (
	apitype "github.com/reportportal/service-api/pkg/apis/api"
)

// Analyzer modes select which previous launches the analyzer compares against.
const (
	ModeAll           = "ALL"
	ModeLaunchName    = "LAUNCH_NAME"
	ModeCurrentLaunch = "CURRENT_LAUNCH"
)

// Item modes select which items of a launch are sent for analysis.
const (
	ItemsToInvestigate     = "TO_INVESTIGATE"
	ItemsAutoAnalyzed      = "AUTO_ANALYZED"
	ItemsManuallyAnalyzed  = "MANUALLY_ANALYZED"
	defaultNumberOfLogLine = -1
)

// Config is the part of the project configuration the analyzer needs.
type Config struct {
	AnalyzerMode          string `json:"analyzerMode"`
	MinShouldMatch        int    `json:"minShouldMatch"`
	NumberOfLogLines      int    `json:"numberOfLogLines"`
	IsAutoAnalyzerEnabled bool   `json:"isAutoAnalyzerEnabled"`
}

type IndexLog struct {
	LogID    uint   `json:"logId"`
	LogLevel int    `json:"logLevel"`
	Message  string `json:"message"`
}

type IndexTestItem struct {
	TestItemID       uint         `json:"testItemId"`
	TestItemName     string       `json:"testItemName"`
	UniqueID         string       `json:"uniqueId"`
	TestCaseHash     int32        `json:"testCaseHash"`
	StartTime        apitype.Time `json:"startTime"`
	IssueTypeLocator string       `json:"issueType,omitempty"`
	AutoAnalyzed     bool         `json:"isAutoAnalyzed"`
	Logs             []IndexLog   `json:"logs"`
}

// IndexLaunch is a launch with the items and logs an analyzer works on.
type IndexLaunch struct {
	LaunchID       uint            `json:"launchId"`
	LaunchName     string          `json:"launchName"`
	ProjectID      uint            `json:"project"`
	AnalyzerConfig Config          `json:"analyzerConfig"`
	TestItems      []IndexTestItem `json:"testItems"`
}

// AnalyzedItem is the verdict of an analyzer about one item.
type AnalyzedItem struct {
	ItemID         uint   `json:"testItemId"`
	RelevantItemID uint   `json:"relevantItemId"`
	IssueType      string `json:"issueType"`
}

type SearchRQ struct {
	ProjectID      uint     `json:"projectId"`
	LaunchID       uint     `json:"launchId"`
	LaunchName     string   `json:"launchName"`
	ItemID         uint     `json:"itemId"`
	FilteredLaunch []uint   `json:"filteredLaunchIds"`
	LogMessages    []string `json:"logMessages"`
	LogLines       int      `json:"logLines"`
}

type SearchRS struct {
	LogID  uint `json:"logId"`
	ItemID uint `json:"testItemId"`
}

type CleanIndexRQ struct {
	ProjectID uint   `json:"project"`
	LogIDs    []uint `json:"ids"`
}

// Info describes an analyzer for the service info endpoint.
type Info struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Version  string `json:"version,omitempty"`
	Index    bool   `json:"index"`
}
