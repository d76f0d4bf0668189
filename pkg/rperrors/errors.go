// Package rperrors holds the catalogue of domain error types returned by the API, along with
// the HTTP status each one maps to.
package rperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType identifies a class of domain failure. The numeric code is part of the API contract
// and is returned to clients as errorCode.
type ErrorType struct {
	Code    int
	Name    string
	message string
}

func (t ErrorType) String() string {
	return t.Name
}

var (
	IncorrectRequest          = ErrorType{4001, "INCORRECT_REQUEST", "Incorrect Request. {}"}
	BinaryDataCannotBeSaved   = ErrorType{4002, "BINARY_DATA_CANNOT_BE_SAVED", "Binary data cannot be saved. {}"}
	AccessDenied              = ErrorType{4003, "ACCESS_DENIED", "You do not have enough permissions. {}"}
	BadRequest                = ErrorType{4004, "BAD_REQUEST_ERROR", "Error in handled Request. Please, check specified parameters: '{}'"}
	IncorrectFilterParameters = ErrorType{4005, "INCORRECT_FILTER_PARAMETERS", "Incorrect filtering parameters. {}"}
	IncorrectSortingParams    = ErrorType{4006, "INCORRECT_SORTING_PARAMETERS", "Incorrect sorting parameters. {}"}
	ForbiddenOperation        = ErrorType{4007, "FORBIDDEN_OPERATION", "Forbidden operation. {}"}
	AmbiguousTestItemStatus   = ErrorType{4008, "AMBIGUOUS_TEST_ITEM_STATUS", "Test item status is ambiguous. {}"}
	BadSaveLogRequest         = ErrorType{4009, "BAD_SAVE_LOG_REQUEST", "Error in Save Log Request. {}"}
	BadSaveWidgetRequest      = ErrorType{40010, "BAD_SAVE_WIDGET_REQUEST", "Error in Save Widget Request. {}"}
	BadUpdateWidgetRequest    = ErrorType{40011, "BAD_UPDATE_WIDGET_REQUEST", "Error in Update Widget Request. {}"}
	BadSaveUserFilterRequest  = ErrorType{40012, "BAD_SAVE_USER_FILTER_REQUEST", "Error in Save User Filter Request. {}"}
	FailedIssueTypeDefinition = ErrorType{40013, "FAILED_TEST_ITEM_ISSUE_TYPE_DEFINITION", "Test item issue type cannot be resolved. {}"}
	UnsupportedTestItemType   = ErrorType{40014, "UNSUPPORTED_TEST_ITEM_TYPE", "Test item type '{}' is not supported"}
	ImportFileError           = ErrorType{40015, "IMPORT_FILE_ERROR", "Error while importing the file. {}"}
	ParsingXMLError           = ErrorType{40016, "PARSING_XML_ERROR", "Error while parsing XML file. {}"}
	UnablePostTicket          = ErrorType{40017, "UNABLE_POST_TICKET", "Impossible post ticket to BTS. {}"}
	IncorrectAuthType         = ErrorType{40018, "INCORRECT_AUTHENTICATION_TYPE", "Incorrect authentication type. {}"}
	RetriesHandlerError       = ErrorType{40019, "RETRIES_HANDLER_ERROR", "Unable to handle retry. {}"}
	Unauthorized              = ErrorType{4010, "UNAUTHORIZED", "Full authentication is required. {}"}

	NotFound                    = ErrorType{4040, "NOT_FOUND", "Resource '{}' not found."}
	LaunchNotFound              = ErrorType{4041, "LAUNCH_NOT_FOUND", "Launch '{}' not found. Did you use correct Launch ID?"}
	TestItemNotFound            = ErrorType{4042, "TEST_ITEM_NOT_FOUND", "Test Item '{}' not found. Did you use correct Test Item ID?"}
	LogNotFound                 = ErrorType{4043, "LOG_NOT_FOUND", "Log '{}' not found. Did you use correct Log ID?"}
	ProjectNotFound             = ErrorType{4044, "PROJECT_NOT_FOUND", "Project '{}' not found. Did you use correct project name?"}
	UserNotFound                = ErrorType{4045, "USER_NOT_FOUND", "User '{}' not found."}
	WidgetNotFound              = ErrorType{4046, "WIDGET_NOT_FOUND", "Widget with ID '{}' not found. Did you use correct Widget ID?"}
	WidgetNotFoundInDashboard   = ErrorType{4047, "WIDGET_NOT_FOUND_IN_DASHBOARD", "Widget with ID '{}' not found in dashboard."}
	DashboardNotFound           = ErrorType{4048, "DASHBOARD_NOT_FOUND", "Dashboard with ID '{}' not found. Did you use correct Dashboard ID?"}
	UserFilterNotFound          = ErrorType{4049, "USER_FILTER_NOT_FOUND", "User filter with ID '{}' not found. Did you use correct User Filter ID?"}
	ActivityNotFound            = ErrorType{40410, "ACTIVITY_NOT_FOUND", "Activity for current object with ID '{}' not found."}
	IssueTypeNotFound           = ErrorType{40411, "ISSUE_TYPE_NOT_FOUND", "Issue type '{}' not found."}
	IntegrationNotFound         = ErrorType{40412, "INTEGRATION_NOT_FOUND", "Integration with ID '{}' not found."}
	AttachmentNotFound          = ErrorType{40413, "ATTACHMENT_NOT_FOUND", "Attachment '{}' not found."}
	UnableToLoadBinaryData      = ErrorType{40414, "UNABLE_TO_LOAD_BINARY_DATA", "Unable to load binary data by id '{}'"}
	TestItemOrLaunchNotFound    = ErrorType{40415, "TEST_ITEM_OR_LAUNCH_NOT_FOUND", "Test item or launch '{}' not found."}
	AnalyzerNotFound            = ErrorType{40416, "ANALYZER_NOT_FOUND", "Analyzer '{}' not found."}
	TicketNotFound              = ErrorType{40417, "TICKET_NOT_FOUND", "Ticket '{}' not found."}
	ProjectNotConfigured        = ErrorType{40418, "PROJECT_NOT_CONFIGURED", "Project not configured. {}"}
	ApiKeyNotFound              = ErrorType{40419, "API_KEY_NOT_FOUND", "Api key '{}' not found."}
	EmailConfigurationIncorrect = ErrorType{4031, "EMAIL_CONFIGURATION_IS_INCORRECT", "Email configuration is incorrect. {}"}

	ResourceAlreadyExists    = ErrorType{4091, "RESOURCE_ALREADY_EXISTS", "Resource '{}' already exists. You couldn't create the duplicate."}
	ProjectAlreadyExists     = ErrorType{4092, "PROJECT_ALREADY_EXISTS", "Project '{}' already exists. You couldn't create the duplicate."}
	UserAlreadyExists        = ErrorType{4093, "USER_ALREADY_EXISTS", "User with '{}' already exists. You couldn't create the duplicate."}
	IntegrationAlreadyExists = ErrorType{4094, "INTEGRATION_ALREADY_EXISTS", "Integration '{}' already exists. You couldn't create the duplicate."}
	UnableLoadWidgetContent  = ErrorType{4095, "UNABLE_LOAD_WIDGET_CONTENT", "Unable to load widget content. {}"}
	UnableInteractWithIntegr = ErrorType{4096, "UNABLE_INTERACT_WITH_INTEGRATION", "Impossible interact with integration. {}"}
	UnableLoadItemHistory    = ErrorType{4097, "UNABLE_LOAD_TEST_ITEM_HISTORY", "Unable to load test item history. {}"}
	DashboardUpdateError     = ErrorType{4098, "DASHBOARD_UPDATE_ERROR", "Dashboard update error. {}"}

	FinishTimeEarlierThanStart = ErrorType{4061, "FINISH_TIME_EARLIER_THAN_START_TIME", "Finish time '{}' is earlier than start time '{}' for resource with ID '{}'"}
	ChildStartTimeEarlier      = ErrorType{4062, "CHILD_START_TIME_EARLIER_THAN_PARENT", "Start time of child ['{}'] item should be same or later than start time ['{}'] of the parent item/launch '{}'"}
	IncorrectFinishStatus      = ErrorType{4063, "INCORRECT_FINISH_STATUS", "Incorrect status of finishing entity. {}"}
	LaunchIsNotFinished        = ErrorType{4064, "LAUNCH_IS_NOT_FINISHED", "Launch is not finished. {}"}
	TestItemIsNotFinished      = ErrorType{4065, "TEST_ITEM_IS_NOT_FINISHED", "Test item is not finished. {}"}
	FinishLaunchNotAllowed     = ErrorType{4066, "FINISH_LAUNCH_NOT_ALLOWED", "Finish launch is not allowed. {}"}
	StartItemNotAllowed        = ErrorType{4067, "START_ITEM_NOT_ALLOWED", "Start test item is not allowed. {}"}
	FinishItemNotAllowed       = ErrorType{4068, "FINISH_ITEM_NOT_ALLOWED", "Finish test item is not allowed. {}"}
	LoggingIsNotAllowed        = ErrorType{4069, "LOGGING_IS_NOT_ALLOWED", "Logging is not allowed. {}"}
	ReportingItemFinished      = ErrorType{40610, "REPORTING_ITEM_ALREADY_FINISHED", "Unable to finish already finished item. {}"}
	UnsupportedMergeStrategy   = ErrorType{40611, "UNSUPPORTED_MERGE_STRATEGY_TYPE", "Unsupported merge strategy type: '{}'"}
	UnableToCreateWidget       = ErrorType{40612, "UNABLE_TO_CREATE_WIDGET", "Unable to create widget. {}"}

	UnableModifySharable   = ErrorType{4221, "UNABLE_MODIFY_SHARABLE_RESOURCE", "Unable to modify sharable resource. {}"}
	ProjectDoesntContain   = ErrorType{4222, "PROJECT_DOESNT_CONTAIN_USER", "Project '{}' doesn't contain user '{}'"}
	UnableAssignUser       = ErrorType{4223, "UNABLE_ASSIGN_UNASSIGN_USER_TO_PROJECT", "Unable assign/unassign user to/from project. {}"}
	UnableUpdateOwnRole    = ErrorType{4224, "UNABLE_TO_UPDATE_YOURSELF_ROLE", "Unable to update role of yourself. {}"}
	ProjectUpdateForbidden = ErrorType{4225, "PROJECT_UPDATE_NOT_ALLOWED", "Project update not allowed. {}"}

	UnclassifiedError = ErrorType{5000, "UNCLASSIFIED_ERROR", "Unclassified error"}
)

var statusByType = map[string]int{}

func init() {
	register := func(status int, types ...ErrorType) {
		for _, t := range types {
			statusByType[t.Name] = status
		}
	}

	register(http.StatusNotFound,
		NotFound, LaunchNotFound, TestItemNotFound, LogNotFound, ProjectNotFound, UserNotFound,
		WidgetNotFound, WidgetNotFoundInDashboard, DashboardNotFound, UserFilterNotFound, ActivityNotFound,
		IssueTypeNotFound, IntegrationNotFound, AttachmentNotFound, UnableToLoadBinaryData,
		TestItemOrLaunchNotFound, AnalyzerNotFound, TicketNotFound, ProjectNotConfigured, ApiKeyNotFound)
	register(http.StatusConflict,
		ResourceAlreadyExists, ProjectAlreadyExists, UserAlreadyExists, IntegrationAlreadyExists,
		UnableLoadWidgetContent, UnableInteractWithIntegr, UnableLoadItemHistory, DashboardUpdateError)
	register(http.StatusNotAcceptable,
		FinishTimeEarlierThanStart, ChildStartTimeEarlier, IncorrectFinishStatus, LaunchIsNotFinished,
		TestItemIsNotFinished, FinishLaunchNotAllowed, StartItemNotAllowed, FinishItemNotAllowed,
		LoggingIsNotAllowed, ReportingItemFinished, UnsupportedMergeStrategy, UnableToCreateWidget)
	register(http.StatusBadRequest,
		IncorrectRequest, BinaryDataCannotBeSaved, BadRequest, IncorrectFilterParameters,
		IncorrectSortingParams, ForbiddenOperation, AmbiguousTestItemStatus, BadSaveLogRequest,
		BadSaveWidgetRequest, BadUpdateWidgetRequest, BadSaveUserFilterRequest, FailedIssueTypeDefinition,
		UnsupportedTestItemType, ImportFileError, ParsingXMLError, UnablePostTicket, IncorrectAuthType,
		RetriesHandlerError)
	register(http.StatusForbidden, AccessDenied, EmailConfigurationIncorrect)
	register(http.StatusUnauthorized, Unauthorized)
	register(http.StatusUnprocessableEntity,
		UnableModifySharable, ProjectDoesntContain, UnableAssignUser, UnableUpdateOwnRole, ProjectUpdateForbidden)
	register(http.StatusInternalServerError, UnclassifiedError)
}

// HTTPStatus returns the status code the error type is reported with.
func (t ErrorType) HTTPStatus() int {
	if s, ok := statusByType[t.Name]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a domain error with a type from the catalogue and a rendered message.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New renders the type's message template, substituting each {} placeholder with the next
// argument in order. Unused placeholders are rendered empty.
func New(t ErrorType, args ...interface{}) *Error {
	return &Error{Type: t, Message: format(t.message, args...)}
}

// Expect returns an error of the given type when ok is false.
func Expect(ok bool, t ErrorType, args ...interface{}) error {
	if ok {
		return nil
	}
	return New(t, args...)
}

// As extracts the domain error from err, following wrapped errors.
func As(err error) (*Error, bool) {
	var rpErr *Error
	if errors.As(err, &rpErr) {
		return rpErr, true
	}
	return nil, false
}

// Is reports whether err is a domain error of the given type.
func Is(err error, t ErrorType) bool {
	rpErr, ok := As(err)
	return ok && rpErr.Type.Name == t.Name
}

// StatusOf returns the HTTP status for any error, falling back to 500 for unclassified errors.
func StatusOf(err error) int {
	if rpErr, ok := As(err); ok {
		return rpErr.Type.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func format(template string, args ...interface{}) string {
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(template, "{}")
		if idx < 0 {
			b.WriteString(template)
			break
		}
		b.WriteString(template[:idx])
		if i < len(args) {
			b.WriteString(fmt.Sprint(args[i]))
			i++
		}
		template = template[idx+2:]
	}
	return strings.TrimSpace(b.String())
}
