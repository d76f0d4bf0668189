package api

// StartLaunchRQ is sent by agents to open a launch.
type StartLaunchRQ struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
	StartTime   Time                    `json:"startTime"`
	UUID        string                  `json:"uuid,omitempty"`
	Mode        LaunchMode              `json:"mode,omitempty"`
	Rerun       bool                    `json:"rerun,omitempty"`
	RerunOf     string                  `json:"rerunOf,omitempty"`
}

type StartLaunchRS struct {
	ID     string `json:"id"`
	Number int64  `json:"number"`
}

// FinishExecutionRQ finishes or stops a launch. Status is optional.
type FinishExecutionRQ struct {
	EndTime     Time                    `json:"endTime"`
	Status      string                  `json:"status,omitempty"`
	Description string                  `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
}

type FinishLaunchRS struct {
	ID     string `json:"id"`
	Number int64  `json:"number"`
	Link   string `json:"link"`
}

// BulkFinishRQ stops several launches at once, keyed by launch id.
type BulkFinishRQ struct {
	Entities map[uint]FinishExecutionRQ `json:"entities"`
}

type StartTestItemRQ struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
	StartTime   Time                    `json:"startTime"`
	UUID        string                  `json:"uuid,omitempty"`
	LaunchUUID  string                  `json:"launchUuid"`
	Type        string                  `json:"type"`
	Parameters  []ParameterResource     `json:"parameters,omitempty"`
	UniqueID    string                  `json:"uniqueId,omitempty"`
	TestCaseID  string                  `json:"testCaseId,omitempty"`
	CodeRef     string                  `json:"codeRef,omitempty"`
	Retry       bool                    `json:"retry,omitempty"`
	RetryOf     string                  `json:"retryOf,omitempty"`
	HasStats    *bool                   `json:"hasStats,omitempty"`
}

type ItemCreatedRS struct {
	ID       string `json:"id"`
	UniqueID string `json:"uniqueId"`
}

// Issue describes the defect assigned to a failed test item.
type Issue struct {
	IssueType            string                `json:"issueType"`
	Comment              string                `json:"comment,omitempty"`
	AutoAnalyzed         bool                  `json:"autoAnalyzed"`
	IgnoreAnalyzer       bool                  `json:"ignoreAnalyzer"`
	ExternalSystemIssues []ExternalSystemIssue `json:"externalSystemIssues,omitempty"`
}

type ExternalSystemIssue struct {
	TicketID   string `json:"ticketId"`
	URL        string `json:"url"`
	BtsURL     string `json:"btsUrl"`
	BtsProject string `json:"btsProject"`
	SubmitDate *Time  `json:"submitDate,omitempty"`
	PluginName string `json:"pluginName,omitempty"`
}

type FinishTestItemRQ struct {
	EndTime     Time                    `json:"endTime"`
	Status      string                  `json:"status,omitempty"`
	Description string                  `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
	LaunchUUID  string                  `json:"launchUuid"`
	Issue       *Issue                  `json:"issue,omitempty"`
	TestCaseID  string                  `json:"testCaseId,omitempty"`
	Retry       bool                    `json:"retry,omitempty"`
	RetryOf     string                  `json:"retryOf,omitempty"`
}

// File references the multipart part holding a log attachment.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
}

type SaveLogRQ struct {
	UUID       string `json:"uuid,omitempty"`
	LaunchUUID string `json:"launchUuid,omitempty"`
	ItemUUID   string `json:"itemUuid,omitempty"`
	LogTime    Time   `json:"time"`
	Message    string `json:"message"`
	Level      string `json:"level"`
	File       *File  `json:"file,omitempty"`
}

// MergeLaunchesRQ combines finished launches of one project into a new launch.
type MergeLaunchesRQ struct {
	Name                    string                  `json:"name"`
	Description             string                  `json:"description,omitempty"`
	Attributes              []ItemAttributeResource `json:"attributes,omitempty"`
	StartTime               *Time                   `json:"startTime,omitempty"`
	EndTime                 *Time                   `json:"endTime,omitempty"`
	Mode                    LaunchMode              `json:"mode,omitempty"`
	Launches                []uint                  `json:"launches"`
	MergeType               string                  `json:"mergeType"`
	ExtendSuitesDescription bool                    `json:"extendSuitesDescription"`
}

type UpdateLaunchRQ struct {
	Mode        LaunchMode              `json:"mode,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
}

type UpdateTestItemRQ struct {
	Description *string                 `json:"description,omitempty"`
	Attributes  []ItemAttributeResource `json:"attributes,omitempty"`
	Status      string                  `json:"status,omitempty"`
}

type DeleteBulkRQ struct {
	IDs []uint `json:"ids"`
}

type DeleteBulkRS struct {
	Deleted  []uint    `json:"successfullyDeleted"`
	NotFound []uint    `json:"notFound"`
	Errors   []ErrorRS `json:"errors"`
}

// IssueDefinition reassigns the issue of one item.
type IssueDefinition struct {
	ID    uint  `json:"testItemId"`
	Issue Issue `json:"issue"`
}

type DefineIssueRQ struct {
	Issues []IssueDefinition `json:"issues"`
}

type LinkExternalIssueRQ struct {
	TestItemIDs []uint                `json:"testItemIds"`
	Issues      []ExternalSystemIssue `json:"issues"`
}

type UnlinkExternalIssueRQ struct {
	TestItemIDs []uint   `json:"testItemIds"`
	TicketIDs   []string `json:"ticketIds"`
}

// AnalyzeLaunchRQ triggers on-demand analysis of a launch.
type AnalyzeLaunchRQ struct {
	LaunchID         uint     `json:"launchId"`
	AnalyzerMode     string   `json:"analyzerMode"`
	AnalyzeItemsMode []string `json:"analyzeItemsMode"`
}
