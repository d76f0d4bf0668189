package dashboards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, validateName("release board"))
	assert.True(t, rperrors.Is(validateName(" a "), rperrors.IncorrectRequest))
}

func TestResourceAndPlacement(t *testing.T) {
	d := models.Dashboard{
		Name:  "release board",
		Owner: "jane",
		Widgets: []models.DashboardWidget{
			{WidgetID: 3, WidgetName: "trend", WidgetType: "statisticTrend", Width: 6, Height: 4, PositionX: 0, PositionY: 2},
		},
	}
	d.ID = 1

	res := resource(d)
	require.Len(t, res.Widgets, 1)
	assert.Equal(t, apitype.WidgetObjectModel{
		WidgetID:   3,
		WidgetName: "trend",
		WidgetType: "statisticTrend",
		Size:       apitype.Size{Width: 6, Height: 4},
		Position:   apitype.Position{X: 0, Y: 2},
	}, res.Widgets[0])

	p := placement(&d, 3)
	require.NotNil(t, p)
	p.Width = 12
	assert.Equal(t, 12, d.Widgets[0].Width)
	assert.Nil(t, placement(&d, 4))

	empty := resource(models.Dashboard{})
	assert.NotNil(t, empty.Widgets)
}
