package widget

import (
	"strings"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	timelineLaunch = "launch"
	timelineDay    = "day"
	timelineWeek   = "week"
)

// tableColumns are the launch fields a launches table may show next to statistics.
var tableColumns = map[string]bool{
	"name":         true,
	"number":       true,
	"status":       true,
	"description":  true,
	"startTime":    true,
	"endTime":      true,
	"lastModified": true,
	"user":         true,
	"attributes":   true,
}

var activityActions = map[string]bool{}

func init() {
	for _, a := range []models.ActivityAction{
		models.ActionStartLaunch, models.ActionFinishLaunch, models.ActionDeleteLaunch, models.ActionMergeLaunches,
		models.ActionUpdateLaunch, models.ActionUpdateItem, models.ActionLinkIssue, models.ActionUnlinkIssue,
		models.ActionPostIssue, models.ActionAnalyzeItem, models.ActionCreateFilter, models.ActionUpdateFilter,
		models.ActionDeleteFilter, models.ActionCreateDashboard, models.ActionUpdateDashboard, models.ActionDeleteDashboard,
		models.ActionCreateWidget, models.ActionUpdateWidget, models.ActionDeleteWidget, models.ActionCreateIntegr,
		models.ActionUpdateIntegr, models.ActionDeleteIntegr, models.ActionUpdateProject, models.ActionCreateDefect,
		models.ActionUpdateDefect, models.ActionDeleteDefect,
	} {
		activityActions[string(a)] = true
	}
}

func all(validators ...OptionsValidator) OptionsValidator {
	return func(params apitype.ContentParameters, filterCount int) error {
		for _, v := range validators {
			if err := v(params, filterCount); err != nil {
				return err
			}
		}
		return nil
	}
}

func badRequest(msg string) error {
	return rperrors.New(rperrors.BadSaveWidgetRequest, msg)
}

func requireFilters(_ apitype.ContentParameters, filterCount int) error {
	if filterCount == 0 {
		return badRequest("Filter IDs should not be empty")
	}
	return nil
}

// isStatisticField accepts execution counters and defect counters of known groups.
func isStatisticField(field string) bool {
	switch field {
	case apitype.ExecutionsTotal, apitype.ExecutionsPassed, apitype.ExecutionsFailed, apitype.ExecutionsSkipped:
		return true
	}
	for _, g := range apitype.IssueGroups {
		prefix := strings.TrimSuffix(apitype.DefectTotalField(g), "total")
		if len(field) > len(prefix) && strings.HasPrefix(field, prefix) {
			return true
		}
	}
	return false
}

func requireStatisticFields(params apitype.ContentParameters, _ int) error {
	if len(params.ContentFields) == 0 {
		return badRequest("Content fields should not be empty")
	}
	for _, f := range params.ContentFields {
		if !isStatisticField(f) {
			return badRequest("Unknown content field '" + f + "'")
		}
	}
	return nil
}

func requireTableFields(params apitype.ContentParameters, _ int) error {
	if len(params.ContentFields) == 0 {
		return badRequest("Content fields should not be empty")
	}
	for _, f := range params.ContentFields {
		if !tableColumns[f] && !isStatisticField(f) {
			return badRequest("Unknown content field '" + f + "'")
		}
	}
	return nil
}

func requireLaunchName(params apitype.ContentParameters, _ int) error {
	if optString(params.WidgetOptions, OptionLaunchName) == "" {
		return badRequest(OptionLaunchName + " should be specified for widget.")
	}
	return nil
}

func validTimeline(params apitype.ContentParameters, _ int) error {
	switch optString(params.WidgetOptions, OptionTimeline) {
	case "", timelineLaunch, timelineDay, timelineWeek:
		return nil
	}
	return badRequest("Unknown timeline '" + optString(params.WidgetOptions, OptionTimeline) + "'")
}

func validCriteria(params apitype.ContentParameters, _ int) error {
	criteria := optString(params.WidgetOptions, OptionCriteria)
	if criteria == "" || isStatisticField(criteria) {
		return nil
	}
	return badRequest("Unknown criteria '" + criteria + "'")
}

func validActivityOptions(params apitype.ContentParameters, _ int) error {
	for _, a := range optStrings(params.WidgetOptions, OptionActionTypes) {
		if !activityActions[a] {
			return badRequest("Unknown activity type '" + a + "'")
		}
	}
	return nil
}
