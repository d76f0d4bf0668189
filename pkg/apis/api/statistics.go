package api

import "strings"

// Statistics counter names. Defect counters are statistics$defects$<group>$<locator> plus
// statistics$defects$<group>$total.
const (
	statisticsPrefix = "statistics$"
	executionsPrefix = statisticsPrefix + "executions$"
	defectsPrefix    = statisticsPrefix + "defects$"

	ExecutionsTotal   = executionsPrefix + "total"
	ExecutionsPassed  = executionsPrefix + "passed"
	ExecutionsFailed  = executionsPrefix + "failed"
	ExecutionsSkipped = executionsPrefix + "skipped"
)

// DefectField is the counter of a concrete issue sub-type.
func DefectField(group IssueGroup, locator string) string {
	return defectsPrefix + group.StatisticsKey() + "$" + locator
}

// DefectTotalField is the counter of the whole defect group.
func DefectTotalField(group IssueGroup) string {
	return defectsPrefix + group.StatisticsKey() + "$total"
}

// ExecutionField maps a final status to the execution counter it increments. Statuses that
// are not counted return "".
func ExecutionField(status Status) string {
	switch status {
	case StatusPassed, StatusInfo, StatusWarn:
		return ExecutionsPassed
	case StatusFailed, StatusInterrupted, StatusStopped, StatusCancelled:
		return ExecutionsFailed
	case StatusSkipped:
		return ExecutionsSkipped
	}
	return ""
}

// NewStatisticsResource groups raw counters into the response shape.
func NewStatisticsResource(counters map[string]int) StatisticsResource {
	res := StatisticsResource{
		Executions: map[string]int{},
		Defects:    map[string]map[string]int{},
	}
	for field, v := range counters {
		switch {
		case strings.HasPrefix(field, executionsPrefix):
			res.Executions[strings.TrimPrefix(field, executionsPrefix)] = v
		case strings.HasPrefix(field, defectsPrefix):
			parts := strings.SplitN(strings.TrimPrefix(field, defectsPrefix), "$", 2)
			if len(parts) != 2 {
				continue
			}
			if res.Defects[parts[0]] == nil {
				res.Defects[parts[0]] = map[string]int{}
			}
			res.Defects[parts[0]][parts[1]] = v
		}
	}
	return res
}

// ChartObject is one launch point of a chart: its identity and a set of named values.
type ChartObject struct {
	ID        uint               `json:"id"`
	Name      string             `json:"name"`
	Number    int64              `json:"number"`
	StartTime Time               `json:"startTime"`
	Values    map[string]float64 `json:"values"`
}
