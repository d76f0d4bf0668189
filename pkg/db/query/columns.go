package query

import (
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/filter"
)

const (
	launchAttributesExpr = "ARRAY(SELECT CASE WHEN ia.key IS NULL OR ia.key = '' THEN ia.value ELSE ia.key || ':' || ia.value END " +
		"FROM item_attributes ia WHERE ia.launch_id = launches.id AND NOT ia.system)"
	itemAttributesExpr = "ARRAY(SELECT CASE WHEN ia.key IS NULL OR ia.key = '' THEN ia.value ELSE ia.key || ':' || ia.value END " +
		"FROM item_attributes ia WHERE ia.item_id = test_items.id AND NOT ia.system)"
)

func launchStatisticColumn(field string) filter.Column {
	return filter.Column{
		Expr: "COALESCE((SELECT ls.counter FROM launch_statistics ls WHERE ls.launch_id = launches.id AND ls.field = '" + field + "'), 0)",
		Type: apitype.ColumnTypeNumerical,
	}
}

// LaunchColumns are the launch fields available to filters and sorting.
var LaunchColumns = func() filter.ColumnMap {
	cols := filter.ColumnMap{
		"id":                  {Expr: "launches.id", Type: apitype.ColumnTypeNumerical},
		"uuid":                {Expr: "launches.uuid", Type: apitype.ColumnTypeString},
		"name":                {Expr: "launches.name", Type: apitype.ColumnTypeString},
		"description":         {Expr: "launches.description", Type: apitype.ColumnTypeString},
		"number":              {Expr: "launches.number", Type: apitype.ColumnTypeNumerical},
		"status":              {Expr: "launches.status", Type: apitype.ColumnTypeString},
		"mode":                {Expr: "launches.mode", Type: apitype.ColumnTypeString},
		"startTime":           {Expr: "launches.start_time", Type: apitype.ColumnTypeTimestamp},
		"endTime":             {Expr: "launches.end_time", Type: apitype.ColumnTypeTimestamp},
		"lastModified":        {Expr: "launches.updated_at", Type: apitype.ColumnTypeTimestamp},
		"approximateDuration": {Expr: "launches.approximate_duration", Type: apitype.ColumnTypeNumerical},
		"hasRetries":          {Expr: "launches.has_retries::text", Type: apitype.ColumnTypeString},
		"user":                {Expr: "(SELECT u.login FROM users u WHERE u.id = launches.user_id)", Type: apitype.ColumnTypeString},
		"attributes":          {Expr: launchAttributesExpr, Type: apitype.ColumnTypeArray},
		"compositeAttribute":  {Expr: launchAttributesExpr, Type: apitype.ColumnTypeArray},
	}
	for _, f := range []string{apitype.ExecutionsTotal, apitype.ExecutionsPassed, apitype.ExecutionsFailed, apitype.ExecutionsSkipped} {
		cols[f] = launchStatisticColumn(f)
	}
	for _, g := range apitype.IssueGroups {
		f := apitype.DefectTotalField(g)
		cols[f] = launchStatisticColumn(f)
	}
	return cols
}()

// TestItemColumns are the test item fields available to filters and sorting.
var TestItemColumns = filter.ColumnMap{
	"id":          {Expr: "test_items.id", Type: apitype.ColumnTypeNumerical},
	"uuid":        {Expr: "test_items.uuid", Type: apitype.ColumnTypeString},
	"name":        {Expr: "test_items.name", Type: apitype.ColumnTypeString},
	"type":        {Expr: "test_items.type", Type: apitype.ColumnTypeString},
	"status":      {Expr: "test_items.status", Type: apitype.ColumnTypeString},
	"description": {Expr: "test_items.description", Type: apitype.ColumnTypeString},
	"launchId":    {Expr: "test_items.launch_id", Type: apitype.ColumnTypeNumerical},
	"parentId":    {Expr: "test_items.parent_id", Type: apitype.ColumnTypeNumerical},
	"uniqueId":    {Expr: "test_items.unique_id", Type: apitype.ColumnTypeString},
	"testCaseId":  {Expr: "test_items.test_case_id", Type: apitype.ColumnTypeString},
	"startTime":   {Expr: "test_items.start_time", Type: apitype.ColumnTypeTimestamp},
	"endTime":     {Expr: "test_items.end_time", Type: apitype.ColumnTypeTimestamp},
	"hasChildren": {Expr: "test_items.has_children::text", Type: apitype.ColumnTypeString},
	"hasStats":    {Expr: "test_items.has_stats::text", Type: apitype.ColumnTypeString},
	"issueType": {
		Expr: "(SELECT it.locator FROM issues i JOIN issue_types it ON it.id = i.issue_type_id WHERE i.item_id = test_items.id)",
		Type: apitype.ColumnTypeString,
	},
	"autoAnalyzed": {
		Expr: "(SELECT i.auto_analyzed::text FROM issues i WHERE i.item_id = test_items.id)",
		Type: apitype.ColumnTypeString,
	},
	"attributes": {Expr: itemAttributesExpr, Type: apitype.ColumnTypeArray},
}

var LogColumns = filter.ColumnMap{
	"id":      {Expr: "logs.id", Type: apitype.ColumnTypeNumerical},
	"uuid":    {Expr: "logs.uuid", Type: apitype.ColumnTypeString},
	"time":    {Expr: "logs.log_time", Type: apitype.ColumnTypeTimestamp},
	"logTime": {Expr: "logs.log_time", Type: apitype.ColumnTypeTimestamp},
	"message": {Expr: "logs.message", Type: apitype.ColumnTypeString},
	"level":   {Expr: "logs.level", Type: apitype.ColumnTypeNumerical},
	"item":    {Expr: "logs.item_id", Type: apitype.ColumnTypeNumerical},
	"launch":  {Expr: "logs.launch_id", Type: apitype.ColumnTypeNumerical},
	"binaryContent": {
		Expr: "logs.attachment_id",
		Type: apitype.ColumnTypeNumerical,
	},
}

var ActivityColumns = filter.ColumnMap{
	"id":           {Expr: "activities.id", Type: apitype.ColumnTypeNumerical},
	"lastModified": {Expr: "activities.created_at", Type: apitype.ColumnTypeTimestamp},
	"creationDate": {Expr: "activities.created_at", Type: apitype.ColumnTypeTimestamp},
	"user":         {Expr: "activities.username", Type: apitype.ColumnTypeString},
	"actionType":   {Expr: "activities.action", Type: apitype.ColumnTypeString},
	"objectType":   {Expr: "activities.object_type", Type: apitype.ColumnTypeString},
	"objectName":   {Expr: "activities.object_name", Type: apitype.ColumnTypeString},
	"objectId":     {Expr: "activities.object_id", Type: apitype.ColumnTypeNumerical},
}

// OwnedColumns serve filters, dashboards and widgets.
func OwnedColumns(table string) filter.ColumnMap {
	return filter.ColumnMap{
		"id":          {Expr: table + ".id", Type: apitype.ColumnTypeNumerical},
		"name":        {Expr: table + ".name", Type: apitype.ColumnTypeString},
		"owner":       {Expr: table + ".owner", Type: apitype.ColumnTypeString},
		"description": {Expr: table + ".description", Type: apitype.ColumnTypeString},
		"shared":      {Expr: table + ".shared::text", Type: apitype.ColumnTypeString},
		"created":     {Expr: table + ".created_at", Type: apitype.ColumnTypeTimestamp},
	}
}

var UserColumns = filter.ColumnMap{
	"id":       {Expr: "users.id", Type: apitype.ColumnTypeNumerical},
	"login":    {Expr: "users.login", Type: apitype.ColumnTypeString},
	"user":     {Expr: "users.login", Type: apitype.ColumnTypeString},
	"email":    {Expr: "users.email", Type: apitype.ColumnTypeString},
	"fullName": {Expr: "users.full_name", Type: apitype.ColumnTypeString},
	"role":     {Expr: "users.role", Type: apitype.ColumnTypeString},
	"type":     {Expr: "users.type", Type: apitype.ColumnTypeString},
}

var ProjectColumns = filter.ColumnMap{
	"id":           {Expr: "projects.id", Type: apitype.ColumnTypeNumerical},
	"name":         {Expr: "projects.name", Type: apitype.ColumnTypeString},
	"organization": {Expr: "projects.organization", Type: apitype.ColumnTypeString},
	"projectType":  {Expr: "projects.project_type", Type: apitype.ColumnTypeString},
	"creationDate": {Expr: "projects.created_at", Type: apitype.ColumnTypeTimestamp},
}
