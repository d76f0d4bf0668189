package reporting

import (
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
)

// AttributesToModels converts request attributes, dropping those without a value.
func AttributesToModels(attrs []apitype.ItemAttributeResource, launchID, itemID *uint) []models.ItemAttribute {
	result := make([]models.ItemAttribute, 0, len(attrs))
	for _, a := range attrs {
		if a.Value == "" {
			continue
		}
		result = append(result, models.ItemAttribute{
			LaunchID: launchID,
			ItemID:   itemID,
			Key:      a.Key,
			Value:    a.Value,
			System:   a.System,
		})
	}
	return result
}

// MissingAttributes returns the additions that are not present in existing.
func MissingAttributes(existing []models.ItemAttribute, additions []models.ItemAttribute) []models.ItemAttribute {
	seen := map[[3]string]bool{}
	key := func(a models.ItemAttribute) [3]string {
		sys := "0"
		if a.System {
			sys = "1"
		}
		return [3]string{a.Key, a.Value, sys}
	}
	for _, a := range existing {
		seen[key(a)] = true
	}
	var result []models.ItemAttribute
	for _, a := range additions {
		if !seen[key(a)] {
			seen[key(a)] = true
			result = append(result, a)
		}
	}
	return result
}

// appendDescription joins a finish request description to the one given at start.
func appendDescription(current, addition string) string {
	switch {
	case addition == "":
		return current
	case current == "":
		return addition
	}
	return current + " " + addition
}
