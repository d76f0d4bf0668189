package reporting

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
)

func TestItemDelta(t *testing.T) {
	productBug := &models.IssueType{IssueGroup: string(apitype.IssueGroupProductBug), Locator: "pb_custom"}

	cases := []struct {
		name      string
		status    apitype.Status
		issueType *models.IssueType
		expected  Delta
	}{
		{
			name:     "passed",
			status:   apitype.StatusPassed,
			expected: Delta{apitype.ExecutionsTotal: 1, apitype.ExecutionsPassed: 1},
		},
		{
			name:      "failed with custom product bug",
			status:    apitype.StatusFailed,
			issueType: productBug,
			expected: Delta{
				apitype.ExecutionsTotal:                    1,
				apitype.ExecutionsFailed:                   1,
				"statistics$defects$product_bug$pb_custom": 1,
				"statistics$defects$product_bug$total":     1,
			},
		},
		{
			name:     "skipped without issue",
			status:   apitype.StatusSkipped,
			expected: Delta{apitype.ExecutionsTotal: 1, apitype.ExecutionsSkipped: 1},
		},
		{
			name:     "interrupted",
			status:   apitype.StatusInterrupted,
			expected: Delta{apitype.ExecutionsTotal: 1, apitype.ExecutionsFailed: 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ItemDelta(tc.status, tc.issueType)
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("unexpected delta (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeltaArithmetic(t *testing.T) {
	d := ItemDelta(apitype.StatusPassed, nil)
	d.Add(ItemDelta(apitype.StatusFailed, nil))
	assert.Equal(t, Delta{apitype.ExecutionsTotal: 2, apitype.ExecutionsPassed: 1, apitype.ExecutionsFailed: 1}, d)

	n := d.Negate()
	assert.Equal(t, -2, n[apitype.ExecutionsTotal])

	d.Add(n)
	assert.Empty(t, d.fields())

	fields := DeltaFromCounters(map[string]int{"b": 1, "a": 2, "c": 0}).fields()
	assert.Equal(t, []string{"a", "b"}, fields)
}

func TestMissingAttributes(t *testing.T) {
	existing := []models.ItemAttribute{{Key: "os", Value: "linux"}}
	additions := AttributesToModels([]apitype.ItemAttributeResource{
		{Key: "os", Value: "linux"},
		{Key: "os", Value: "mac"},
		{Key: "os", Value: "mac"},
		{Key: "empty"},
		{Key: "status", Value: "stopped", System: true},
	}, nil, nil)

	missing := MissingAttributes(existing, additions)
	assert.Len(t, missing, 2)
	assert.Equal(t, "mac", missing[0].Value)
	assert.True(t, missing[1].System)

	assert.Equal(t, "started finished", appendDescription("started", "finished"))
	assert.Equal(t, "finished", appendDescription("", "finished"))
	assert.Equal(t, "started", appendDescription("started", ""))
}

func TestLaunchLink(t *testing.T) {
	assert.Equal(t, "http://rp.local/ui/#demo/launches/all/42", LaunchLink("http://rp.local/", "demo", 42))
}
