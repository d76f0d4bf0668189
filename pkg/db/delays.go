package db

import (
	"fmt"
	"strconv"
	"time"

	"github.com/reportportal/service-api/pkg/rperrors"
)

const day = 24 * time.Hour

// InterruptDelays are the accepted values of the interrupt job attribute.
var InterruptDelays = map[string]time.Duration{
	"1 hour":   time.Hour,
	"3 hours":  3 * time.Hour,
	"6 hours":  6 * time.Hour,
	"12 hours": 12 * time.Hour,
	"1 day":    day,
	"1 week":   7 * day,
}

// KeepDelays are the accepted values of the retention attributes. Zero means forever.
var KeepDelays = map[string]time.Duration{
	"2 weeks":  14 * day,
	"1 month":  30 * day,
	"3 months": 90 * day,
	"6 months": 180 * day,
	"forever":  0,
}

func booleanAttribute(v string) bool {
	return v == "true" || v == "false"
}

// ValidateProjectAttribute checks the value of a known project attribute.
func ValidateProjectAttribute(key, value string) error {
	switch key {
	case AttrInterruptJobTime:
		if _, ok := InterruptDelays[value]; !ok {
			return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Incorrect value '%s' of attribute '%s'", value, key))
		}
	case AttrKeepLaunches, AttrKeepLogs, AttrKeepScreenshots:
		if _, ok := KeepDelays[value]; !ok {
			return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Incorrect value '%s' of attribute '%s'", value, key))
		}
	case AttrAutoAnalyze, AttrNotifications:
		if !booleanAttribute(value) {
			return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Attribute '%s' should be 'true' or 'false'", key))
		}
	case AttrMinShouldMatch:
		n, err := strconv.Atoi(value)
		if err != nil || n < 50 || n > 100 {
			return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Attribute '%s' should be a number from 50 to 100", key))
		}
	default:
		return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Unknown project attribute '%s'", key))
	}
	return nil
}

// ValidateKeepDelays checks that logs and attachments are not kept longer than launches.
func ValidateKeepDelays(attrs map[string]string) error {
	launches := KeepDelays[attrs[AttrKeepLaunches]]
	if launches == 0 {
		return nil
	}
	for _, key := range []string{AttrKeepLogs, AttrKeepScreenshots} {
		d := KeepDelays[attrs[key]]
		if d == 0 || d > launches {
			return rperrors.New(rperrors.BadRequest, fmt.Sprintf("Value of '%s' should not exceed '%s'", key, AttrKeepLaunches))
		}
	}
	return nil
}
