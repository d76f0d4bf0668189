// Package widget builds the content of dashboard widgets. Every widget type has a content
// loader and an options validator, both looked up by type.
package widget

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type Type string

const (
	StatisticTrend          Type = "statisticTrend"
	OverallStatistics       Type = "overallStatistics"
	LaunchStatistics        Type = "launchStatistics"
	LaunchesDurationChart   Type = "launchesDurationChart"
	LaunchesTable           Type = "launchesTable"
	MostFailedTestCases     Type = "mostFailedTestCases"
	FlakyTestCases          Type = "flakyTestCases"
	PassingRateSummary      Type = "passingRateSummary"
	MostTimeConsuming       Type = "mostTimeConsuming"
	CasesTrend              Type = "casesTrend"
	LaunchesComparisonChart Type = "launchesComparisonChart"
	ActivityStream          Type = "activityStream"
)

const (
	MinItemsCount = 1
	MaxItemsCount = 600

	// Option keys.
	OptionLaunchName     = "launchNameFilter"
	OptionTimeline       = "timeline"
	OptionLatest         = "latest"
	OptionIncludeMethods = "includeMethods"
	OptionCriteria       = "criteria"
	OptionActionTypes    = "actionType"
	OptionUsers          = "user"

	resultKey = "result"
)

// Content is the JSON content of a widget.
type Content map[string]interface{}

// Request carries what a loader needs: the project, the widget's saved filters turned into
// query options, and its content parameters.
type Request struct {
	ProjectID     uint
	Filters       []*filter.FilterOptions
	ContentFields []string
	ItemsCount    int
	Options       map[string]interface{}
}

type ContentLoader func(ctx context.Context, dbc *gorm.DB, rq Request) (Content, error)

type OptionsValidator func(params apitype.ContentParameters, filterCount int) error

var loaders = map[Type]ContentLoader{
	StatisticTrend:          loadStatisticTrend,
	OverallStatistics:       loadOverallStatistics,
	LaunchStatistics:        loadLaunchStatistics,
	LaunchesDurationChart:   loadLaunchesDuration,
	LaunchesTable:           loadLaunchesTable,
	MostFailedTestCases:     loadMostFailed,
	FlakyTestCases:          loadFlaky,
	PassingRateSummary:      loadPassingRate,
	MostTimeConsuming:       loadMostTimeConsuming,
	CasesTrend:              loadCasesTrend,
	LaunchesComparisonChart: loadComparison,
	ActivityStream:          loadActivityStream,
}

var validators = map[Type]OptionsValidator{
	StatisticTrend:          all(requireFilters, requireStatisticFields, validTimeline),
	OverallStatistics:       all(requireFilters, requireStatisticFields),
	LaunchStatistics:        all(requireFilters, requireStatisticFields),
	LaunchesDurationChart:   requireFilters,
	LaunchesTable:           all(requireFilters, requireTableFields),
	MostFailedTestCases:     all(requireFilters, requireLaunchName, validCriteria),
	FlakyTestCases:          all(requireFilters, requireLaunchName),
	PassingRateSummary:      requireFilters,
	MostTimeConsuming:       all(requireFilters, requireLaunchName),
	CasesTrend:              all(requireFilters, validTimeline),
	LaunchesComparisonChart: requireFilters,
	ActivityStream:          validActivityOptions,
}

// Types lists the supported widget types.
func Types() []Type {
	types := make([]Type, 0, len(loaders))
	for t := range loaders {
		types = append(types, t)
	}
	return types
}

// Validate checks the widget type and its content parameters.
func Validate(widgetType string, params apitype.ContentParameters, filterCount int) error {
	validate, ok := validators[Type(widgetType)]
	if !ok {
		return rperrors.New(rperrors.UnableToCreateWidget, fmt.Sprintf("Unsupported widget type '%s'", widgetType))
	}
	if params.ItemsCount < MinItemsCount || params.ItemsCount > MaxItemsCount {
		return rperrors.New(rperrors.BadSaveWidgetRequest,
			fmt.Sprintf("Items count should have value from %d to %d", MinItemsCount, MaxItemsCount))
	}
	return validate(params, filterCount)
}

// Load builds the content of a widget of the given type.
func Load(ctx context.Context, dbc *gorm.DB, widgetType string, rq Request) (Content, error) {
	load, ok := loaders[Type(widgetType)]
	if !ok {
		return nil, rperrors.New(rperrors.UnableLoadWidgetContent, fmt.Sprintf("Unsupported widget type '%s'", widgetType))
	}
	if rq.ItemsCount < MinItemsCount || rq.ItemsCount > MaxItemsCount {
		rq.ItemsCount = MaxItemsCount
	}
	return load(ctx, dbc.WithContext(ctx), rq)
}

func optString(options map[string]interface{}, key string) string {
	if s, ok := options[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func optBool(options map[string]interface{}, key string) bool {
	switch v := options[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func optStrings(options map[string]interface{}, key string) []string {
	switch v := options[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
