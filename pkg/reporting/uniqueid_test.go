package reporting

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
)

func TestGenerateUniqueID(t *testing.T) {
	cases := []struct {
		name      string
		pathNames []string
		params    []apitype.ParameterResource
		expected  string
	}{
		{
			name:     "root item without params",
			expected: "auto:;demo;nightly;Login suite",
		},
		{
			name:      "nested item with params",
			pathNames: []string{"Login suite", "Positive"},
			params:    []apitype.ParameterResource{{Key: "browser", Value: "firefox"}, {Value: "42"}},
			expected:  "auto:;demo;nightly;Login suite,Positive;Login suite;browser=firefox,42",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := GenerateUniqueID("demo", "nightly", tc.pathNames, "Login suite", tc.params)
			decoded, err := base64.StdEncoding.DecodeString(id)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, string(decoded))
			assert.True(t, ValidateUniqueID(id))
		})
	}

	assert.False(t, ValidateUniqueID(""))
	assert.False(t, ValidateUniqueID("not base64!"))
	assert.False(t, ValidateUniqueID(base64.StdEncoding.EncodeToString([]byte("manual:id"))))
}

func TestTestCaseID(t *testing.T) {
	assert.Equal(t, "explicit", TestCaseID(apitype.StartTestItemRQ{TestCaseID: "explicit", Name: "n"}))
	assert.Equal(t, "name", TestCaseID(apitype.StartTestItemRQ{Name: "name"}))
	assert.Equal(t, "com.example.LoginTest.login", TestCaseID(apitype.StartTestItemRQ{Name: "n", CodeRef: "com.example.LoginTest.login"}))
	assert.Equal(t, "com.example.LoginTest.login[firefox,42]", TestCaseID(apitype.StartTestItemRQ{
		Name:       "n",
		CodeRef:    "com.example.LoginTest.login",
		Parameters: []apitype.ParameterResource{{Key: "browser", Value: "firefox"}, {Key: "n", Value: "42"}},
	}))
}

func TestTestCaseHash(t *testing.T) {
	assert.Equal(t, int32(0), TestCaseHash(""))
	assert.Equal(t, int32(97), TestCaseHash("a"))
	assert.Equal(t, int32(99162322), TestCaseHash("hello"))
	// overflows and wraps like the agents do
	assert.Equal(t, int32(-650455739), TestCaseHash("com.example.LoginTest.login"))
	assert.Equal(t, int32(1772899), TestCaseHash("\U0001F600"))
}
