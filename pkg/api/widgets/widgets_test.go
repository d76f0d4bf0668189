package widgets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, validateName(" trend ", rperrors.BadSaveWidgetRequest))
	assert.True(t, rperrors.Is(validateName("ab", rperrors.BadSaveWidgetRequest), rperrors.BadSaveWidgetRequest))
	assert.True(t, rperrors.Is(validateName("", rperrors.BadUpdateWidgetRequest), rperrors.BadUpdateWidgetRequest))
}

func TestResource(t *testing.T) {
	options, err := models.ToJSONB(map[string]interface{}{"timeline": "day"})
	require.NoError(t, err)
	w := models.Widget{
		Owner:      "jane",
		Name:       "trend",
		WidgetType: "statisticTrend",
		ItemsCount: 20,
		Options:    options,
		Shared:     true,
		Filters:    []models.UserFilter{{Name: "smoke", Owner: "jane"}},
	}
	w.ID = 5

	res := resource(w)
	assert.Equal(t, uint(5), res.ID)
	assert.Equal(t, "day", res.ContentParameters.WidgetOptions["timeline"])
	assert.NotNil(t, res.ContentParameters.ContentFields)
	require.Len(t, res.AppliedFilters, 1)
	assert.Equal(t, "smoke", res.AppliedFilters[0].Name)
	assert.Nil(t, res.Content)
}
