package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestValidateProjectAttribute(t *testing.T) {
	cases := []struct {
		key, value string
		valid      bool
	}{
		{AttrInterruptJobTime, "3 hours", true},
		{AttrInterruptJobTime, "2 hours", false},
		{AttrKeepLaunches, "forever", true},
		{AttrKeepLogs, "1 year", false},
		{AttrAutoAnalyze, "true", true},
		{AttrNotifications, "yes", false},
		{AttrMinShouldMatch, "80", true},
		{AttrMinShouldMatch, "20", false},
		{"unknown.attribute", "x", false},
	}
	for _, tc := range cases {
		err := ValidateProjectAttribute(tc.key, tc.value)
		if tc.valid {
			assert.NoError(t, err, tc.key)
		} else {
			assert.True(t, rperrors.Is(err, rperrors.BadRequest), "%s=%s", tc.key, tc.value)
		}
	}
}

func TestValidateKeepDelays(t *testing.T) {
	assert.NoError(t, ValidateKeepDelays(DefaultProjectAttributes()))
	assert.NoError(t, ValidateKeepDelays(map[string]string{AttrKeepLaunches: "forever", AttrKeepLogs: "forever"}))
	assert.Error(t, ValidateKeepDelays(map[string]string{AttrKeepLaunches: "1 month", AttrKeepLogs: "3 months", AttrKeepScreenshots: "2 weeks"}))
	assert.Error(t, ValidateKeepDelays(map[string]string{AttrKeepLaunches: "1 month", AttrKeepLogs: "forever", AttrKeepScreenshots: "2 weeks"}))
	assert.Equal(t, 7*24*time.Hour, InterruptDelays["1 week"])
}
