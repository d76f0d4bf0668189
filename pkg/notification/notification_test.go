package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestValidateRules(t *testing.T) {
	valid := func() apitype.SenderCaseDTO {
		return apitype.SenderCaseDTO{RuleName: "failures", SendCase: "failed", Recipients: []string{"OWNER", "qa@example.com", "jdoe"}}
	}

	assert.NoError(t, ValidateRules([]apitype.SenderCaseDTO{valid()}))

	cases := map[string]func(c *apitype.SenderCaseDTO){
		"no recipients":     func(c *apitype.SenderCaseDTO) { c.Recipients = nil },
		"bad email":         func(c *apitype.SenderCaseDTO) { c.Recipients = []string{"qa@@example"} },
		"bad login":         func(c *apitype.SenderCaseDTO) { c.Recipients = []string{"j doe"} },
		"unknown send case": func(c *apitype.SenderCaseDTO) { c.SendCase = "SOMETIMES" },
		"empty rule name":   func(c *apitype.SenderCaseDTO) { c.RuleName = " " },
		"empty launch name": func(c *apitype.SenderCaseDTO) { c.LaunchNames = []string{""} },
		"unknown operator":  func(c *apitype.SenderCaseDTO) { c.AttributesOperator = "XOR" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			err := ValidateRules([]apitype.SenderCaseDTO{c})
			assert.True(t, rperrors.Is(err, rperrors.BadRequest), "unexpected error %v", err)
		})
	}

	err := ValidateRules([]apitype.SenderCaseDTO{valid(), valid()})
	assert.True(t, rperrors.Is(err, rperrors.ResourceAlreadyExists))
}

func TestSendCaseMatches(t *testing.T) {
	failed15 := launchInfo{status: string(apitype.StatusFailed), counters: map[string]int{
		apitype.ExecutionsTotal:                                   100,
		apitype.ExecutionsFailed:                                  10,
		apitype.ExecutionsSkipped:                                 5,
		apitype.DefectTotalField(apitype.IssueGroupToInvestigate): 15,
	}}
	passed := launchInfo{status: string(apitype.StatusPassed), counters: map[string]int{apitype.ExecutionsTotal: 10, apitype.ExecutionsPassed: 10}}

	assert.True(t, sendCaseMatches(SendAlways, passed))
	assert.False(t, sendCaseMatches(SendFailed, passed))
	assert.True(t, sendCaseMatches(SendFailed, failed15))
	assert.True(t, sendCaseMatches(SendToInvestigate, failed15))
	assert.False(t, sendCaseMatches(SendToInvestigate, passed))
	assert.True(t, sendCaseMatches(SendMore10, failed15))
	assert.False(t, sendCaseMatches(SendMore20, failed15))
	assert.False(t, sendCaseMatches(SendMore50, launchInfo{counters: map[string]int{}}))
}

func TestSendCaseMatchesDefectShare(t *testing.T) {
	var (
		total = apitype.ExecutionsTotal
		ti    = apitype.DefectTotalField(apitype.IssueGroupToInvestigate)
		pb    = apitype.DefectTotalField(apitype.IssueGroupProductBug)
		ab    = apitype.DefectTotalField(apitype.IssueGroupAutomationBug)
		si    = apitype.DefectTotalField(apitype.IssueGroupSystemIssue)
		nd    = apitype.DefectTotalField(apitype.IssueGroupNoDefect)
	)
	tests := []struct {
		name     string
		sendCase string
		counters map[string]int
		want     bool
	}{
		{
			name:     "skipped items without defects",
			sendCase: SendMore20,
			counters: map[string]int{total: 10, apitype.ExecutionsSkipped: 3},
			want:     false,
		},
		{
			name:     "product bugs above the threshold",
			sendCase: SendMore50,
			counters: map[string]int{total: 10, pb: 6},
			want:     true,
		},
		{
			name:     "defect groups are summed",
			sendCase: SendMore20,
			counters: map[string]int{total: 10, ti: 1, ab: 1, si: 1},
			want:     true,
		},
		{
			name:     "no defect is not counted",
			sendCase: SendMore10,
			counters: map[string]int{total: 10, nd: 5},
			want:     false,
		},
		{
			name:     "share equal to the threshold",
			sendCase: SendMore50,
			counters: map[string]int{total: 10, pb: 5},
			want:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sendCaseMatches(tc.sendCase, launchInfo{counters: tc.counters}))
		})
	}
}
