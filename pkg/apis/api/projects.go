package api

type CreateProjectRQ struct {
	ProjectName  string `json:"projectName"`
	EntryType    string `json:"entryType"`
	Organization string `json:"organization,omitempty"`
}

type ProjectResource struct {
	ProjectID     uint                  `json:"id"`
	ProjectName   string                `json:"projectName"`
	EntryType     string                `json:"entryType"`
	Organization  string                `json:"organization,omitempty"`
	CreationDate  Time                  `json:"creationDate"`
	Users         []ProjectUserResource `json:"users,omitempty"`
	Configuration ProjectConfiguration  `json:"configuration"`
	Integrations  []IntegrationResource `json:"integrations,omitempty"`
}

type ProjectUserResource struct {
	Login       string      `json:"login"`
	ProjectRole ProjectRole `json:"projectRole"`
}

type ProjectConfiguration struct {
	Attributes  map[string]string             `json:"attributes"`
	Subtypes    map[IssueGroup][]IssueSubType `json:"subTypes"`
	EmailConfig *ProjectNotificationConfig    `json:"notificationsConfiguration,omitempty"`
}

type UpdateProjectRQ struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	UserRoles  map[string]string `json:"userRoles,omitempty"`
}

type AssignUsersRQ struct {
	UserNames map[string]ProjectRole `json:"userNames"`
}

type UnassignUsersRQ struct {
	UserNames []string `json:"userNames"`
}

type IssueSubType struct {
	ID        uint       `json:"id,omitempty"`
	Locator   string     `json:"locator"`
	TypeRef   IssueGroup `json:"typeRef"`
	LongName  string     `json:"longName"`
	ShortName string     `json:"shortName"`
	Color     string     `json:"color"`
}

type CreateIssueSubTypeRQ struct {
	TypeRef   IssueGroup `json:"typeRef"`
	LongName  string     `json:"longName"`
	ShortName string     `json:"shortName"`
	Color     string     `json:"color"`
}

type UpdateIssueSubTypeRQ struct {
	IDs []UpdateOneIssueSubTypeRQ `json:"ids"`
}

type UpdateOneIssueSubTypeRQ struct {
	Locator   string     `json:"locator"`
	TypeRef   IssueGroup `json:"typeRef"`
	LongName  string     `json:"longName"`
	ShortName string     `json:"shortName"`
	Color     string     `json:"color"`
}

// ProjectInfoResource summarizes project activity for the project overview page.
type ProjectInfoResource struct {
	ProjectID        uint             `json:"projectId"`
	ProjectName      string           `json:"projectName"`
	UsersQuantity    int64            `json:"usersQuantity"`
	LaunchesQuantity int64            `json:"launchesQuantity"`
	LaunchesByStatus map[Status]int64 `json:"launchesByStatus"`
	LaunchesByOwner  map[string]int64 `json:"launchesByOwner"`
	LastRun          *Time            `json:"lastRun,omitempty"`
}

// ProjectNotificationConfig holds e-mail rules for launch finish notifications.
type ProjectNotificationConfig struct {
	Enabled bool            `json:"enabled"`
	Cases   []SenderCaseDTO `json:"cases"`
}

type SenderCaseDTO struct {
	ID                 uint                    `json:"id,omitempty"`
	RuleName           string                  `json:"ruleName"`
	Recipients         []string                `json:"recipients"`
	SendCase           string                  `json:"sendCase"`
	LaunchNames        []string                `json:"launchNames,omitempty"`
	Attributes         []ItemAttributeResource `json:"attributes,omitempty"`
	AttributesOperator string                  `json:"attributesOperator,omitempty"`
	Enabled            bool                    `json:"enabled"`
}

type IntegrationResource struct {
	ID      uint                   `json:"id"`
	Name    string                 `json:"name"`
	Type    string                 `json:"integrationType"`
	Enabled bool                   `json:"enabled"`
	Params  map[string]interface{} `json:"integrationParameters"`
	Creator string                 `json:"creator"`
}

type IntegrationRQ struct {
	Name    string                 `json:"name"`
	Enabled *bool                  `json:"enabled,omitempty"`
	Params  map[string]interface{} `json:"integrationParameters"`
}
