package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatisticsResource(t *testing.T) {
	res := NewStatisticsResource(map[string]int{
		ExecutionsTotal:  10,
		ExecutionsFailed: 3,
		DefectField(IssueGroupProductBug, "pb001"):    2,
		DefectTotalField(IssueGroupProductBug):        2,
		DefectField(IssueGroupToInvestigate, "ti001"): 1,
		"unrelated": 5,
	})

	assert.Equal(t, map[string]int{"total": 10, "failed": 3}, res.Executions)
	assert.Equal(t, map[string]int{"pb001": 2, "total": 2}, res.Defects["product_bug"])
	assert.Equal(t, map[string]int{"ti001": 1}, res.Defects["to_investigate"])
	assert.Len(t, res.Defects, 2)
}

func TestExecutionField(t *testing.T) {
	assert.Equal(t, ExecutionsPassed, ExecutionField(StatusPassed))
	assert.Equal(t, ExecutionsPassed, ExecutionField(StatusWarn))
	assert.Equal(t, ExecutionsFailed, ExecutionField(StatusInterrupted))
	assert.Equal(t, ExecutionsSkipped, ExecutionField(StatusSkipped))
	assert.Equal(t, "", ExecutionField(StatusInProgress))
}
