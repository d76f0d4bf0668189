package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeUnmarshal(t *testing.T) {
	expected := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	cases := []struct {
		name  string
		input string
	}{
		{name: "epoch millis", input: `1614834367000`},
		{name: "epoch millis string", input: `"1614834367000"`},
		{name: "rfc3339", input: `"2021-03-04T05:06:07Z"`},
		{name: "rfc3339 with offset", input: `"2021-03-04T07:06:07+02:00"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Time
			require.NoError(t, json.Unmarshal([]byte(tc.input), &got))
			assert.True(t, expected.Equal(got.Time), "got %s", got.Time)
		})
	}
}

func TestTimeMarshal(t *testing.T) {
	b, err := json.Marshal(NewTime(time.UnixMilli(1614834367123)))
	require.NoError(t, err)
	assert.Equal(t, "1614834367123", string(b))

	b, err = json.Marshal(struct {
		T *Time `json:"t,omitempty"`
	}{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestNewPage(t *testing.T) {
	page := NewPage([]int{1, 2}, 2, 2, 5)
	assert.Equal(t, int64(3), page.Page.TotalPages)
	assert.Equal(t, int64(5), page.Page.TotalElements)

	empty := NewPage[int](nil, 1, 20, 0)
	assert.NotNil(t, empty.Content)
	assert.Equal(t, int64(0), empty.Page.TotalPages)
}

func TestProjectRoleOrdering(t *testing.T) {
	assert.True(t, ProjectRoleProjectManager.SameOrHigherThan(ProjectRoleMember))
	assert.True(t, ProjectRoleMember.SameOrHigherThan(ProjectRoleMember))
	assert.True(t, ProjectRoleOperator.LowerThan(ProjectRoleCustomer))
	assert.False(t, ProjectRoleCustomer.SameOrHigherThan(ProjectRoleMember))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelUnknown, ParseLogLevel("verbose"))
	assert.Equal(t, 40000, LogLevelError.Int())
	assert.Equal(t, LogLevelWarn, LogLevelFromInt(30000))
}
