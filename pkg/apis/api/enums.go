package api

import "strings"

// Status is the execution status of a launch or test item.
type Status string

const (
	StatusInProgress  Status = "IN_PROGRESS"
	StatusPassed      Status = "PASSED"
	StatusFailed      Status = "FAILED"
	StatusStopped     Status = "STOPPED"
	StatusSkipped     Status = "SKIPPED"
	StatusInterrupted Status = "INTERRUPTED"
	StatusCancelled   Status = "CANCELLED"
	StatusInfo        Status = "INFO"
	StatusWarn        Status = "WARN"
)

var allStatuses = []Status{
	StatusInProgress, StatusPassed, StatusFailed, StatusStopped, StatusSkipped,
	StatusInterrupted, StatusCancelled, StatusInfo, StatusWarn,
}

// ParseStatus converts a case-insensitive status name. ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// IsPositive reports whether the status does not make its parent fail.
func (s Status) IsPositive() bool {
	return s == StatusPassed || s == StatusInfo || s == StatusWarn
}

// ItemType is the kind of a test item in the tree.
type ItemType string

const (
	ItemTypeSuite        ItemType = "SUITE"
	ItemTypeStory        ItemType = "STORY"
	ItemTypeTest         ItemType = "TEST"
	ItemTypeScenario     ItemType = "SCENARIO"
	ItemTypeStep         ItemType = "STEP"
	ItemTypeBeforeClass  ItemType = "BEFORE_CLASS"
	ItemTypeBeforeGroups ItemType = "BEFORE_GROUPS"
	ItemTypeBeforeMethod ItemType = "BEFORE_METHOD"
	ItemTypeBeforeSuite  ItemType = "BEFORE_SUITE"
	ItemTypeBeforeTest   ItemType = "BEFORE_TEST"
	ItemTypeAfterClass   ItemType = "AFTER_CLASS"
	ItemTypeAfterGroups  ItemType = "AFTER_GROUPS"
	ItemTypeAfterMethod  ItemType = "AFTER_METHOD"
	ItemTypeAfterSuite   ItemType = "AFTER_SUITE"
	ItemTypeAfterTest    ItemType = "AFTER_TEST"
)

// itemTypeLevel orders item types from the outermost container to the innermost step.
var itemTypeLevel = map[ItemType]int{
	ItemTypeSuite:        1,
	ItemTypeStory:        2,
	ItemTypeTest:         3,
	ItemTypeScenario:     4,
	ItemTypeStep:         5,
	ItemTypeBeforeClass:  5,
	ItemTypeBeforeGroups: 5,
	ItemTypeBeforeMethod: 5,
	ItemTypeBeforeSuite:  5,
	ItemTypeBeforeTest:   5,
	ItemTypeAfterClass:   5,
	ItemTypeAfterGroups:  5,
	ItemTypeAfterMethod:  5,
	ItemTypeAfterSuite:   5,
	ItemTypeAfterTest:    5,
}

func ParseItemType(s string) (ItemType, bool) {
	t := ItemType(strings.ToUpper(s))
	_, ok := itemTypeLevel[t]
	return t, ok
}

// Level returns the nesting level of the type, 0 for unknown types.
func (t ItemType) Level() int {
	return itemTypeLevel[t]
}

// IsSuiteLevel reports whether the type is a container that DEEP merge may combine.
func (t ItemType) IsSuiteLevel() bool {
	l := t.Level()
	return l > 0 && l < ItemTypeStep.Level()
}

type LaunchMode string

const (
	LaunchModeDefault LaunchMode = "DEFAULT"
	LaunchModeDebug   LaunchMode = "DEBUG"
)

// LogLevel is the severity of a log entry, stored by its numeric value.
type LogLevel string

const (
	LogLevelFatal   LogLevel = "FATAL"
	LogLevelError   LogLevel = "ERROR"
	LogLevelWarn    LogLevel = "WARN"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelTrace   LogLevel = "TRACE"
	LogLevelUnknown LogLevel = "UNKNOWN"
)

var logLevelValues = map[LogLevel]int{
	LogLevelFatal:   50000,
	LogLevelError:   40000,
	LogLevelWarn:    30000,
	LogLevelInfo:    20000,
	LogLevelDebug:   10000,
	LogLevelTrace:   5000,
	LogLevelUnknown: 60000,
}

// ParseLogLevel is lenient: unknown names become UNKNOWN.
func ParseLogLevel(s string) LogLevel {
	l := LogLevel(strings.ToUpper(s))
	if _, ok := logLevelValues[l]; ok {
		return l
	}
	return LogLevelUnknown
}

func (l LogLevel) Int() int {
	if v, ok := logLevelValues[l]; ok {
		return v
	}
	return logLevelValues[LogLevelUnknown]
}

// LogLevelFromInt converts a stored numeric level back to its name.
func LogLevelFromInt(v int) LogLevel {
	for l, i := range logLevelValues {
		if i == v {
			return l
		}
	}
	return LogLevelUnknown
}

// IssueGroup is a defect type family.
type IssueGroup string

const (
	IssueGroupToInvestigate IssueGroup = "TO_INVESTIGATE"
	IssueGroupProductBug    IssueGroup = "PRODUCT_BUG"
	IssueGroupAutomationBug IssueGroup = "AUTOMATION_BUG"
	IssueGroupSystemIssue   IssueGroup = "SYSTEM_ISSUE"
	IssueGroupNoDefect      IssueGroup = "NO_DEFECT"
)

var IssueGroups = []IssueGroup{
	IssueGroupProductBug, IssueGroupAutomationBug, IssueGroupSystemIssue, IssueGroupToInvestigate, IssueGroupNoDefect,
}

// Locator is the default sub-type locator of the group.
func (g IssueGroup) Locator() string {
	switch g {
	case IssueGroupToInvestigate:
		return "ti001"
	case IssueGroupProductBug:
		return "pb001"
	case IssueGroupAutomationBug:
		return "ab001"
	case IssueGroupSystemIssue:
		return "si001"
	case IssueGroupNoDefect:
		return "nd001"
	}
	return ""
}

// StatisticsKey is the defect counter prefix for the group.
func (g IssueGroup) StatisticsKey() string {
	return strings.ToLower(string(g))
}

// NotIssueFlag is sent as an issue type locator by agents to suppress issue creation.
const NotIssueFlag = "NOT_ISSUE"

// ProjectRole orders project membership from the least to the most privileged.
type ProjectRole string

const (
	ProjectRoleOperator       ProjectRole = "OPERATOR"
	ProjectRoleCustomer       ProjectRole = "CUSTOMER"
	ProjectRoleMember         ProjectRole = "MEMBER"
	ProjectRoleProjectManager ProjectRole = "PROJECT_MANAGER"
)

var projectRoleRank = map[ProjectRole]int{
	ProjectRoleOperator:       0,
	ProjectRoleCustomer:       1,
	ProjectRoleMember:         2,
	ProjectRoleProjectManager: 3,
}

func ParseProjectRole(s string) (ProjectRole, bool) {
	r := ProjectRole(strings.ToUpper(s))
	_, ok := projectRoleRank[r]
	return r, ok
}

// SameOrHigherThan reports whether r grants at least the privileges of other.
func (r ProjectRole) SameOrHigherThan(other ProjectRole) bool {
	return projectRoleRank[r] >= projectRoleRank[other]
}

func (r ProjectRole) LowerThan(other ProjectRole) bool {
	return projectRoleRank[r] < projectRoleRank[other]
}

type UserRole string

const (
	UserRoleUser          UserRole = "USER"
	UserRoleAdministrator UserRole = "ADMINISTRATOR"
)

type UserType string

const (
	UserTypeInternal UserType = "INTERNAL"
	UserTypeGithub   UserType = "GITHUB"
	UserTypeLDAP     UserType = "LDAP"
)

// MergeStrategy selects how launches are combined.
type MergeStrategy string

const (
	MergeStrategyBasic MergeStrategy = "BASIC"
	MergeStrategyDeep  MergeStrategy = "DEEP"
)
