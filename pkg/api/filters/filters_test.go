package filters

import (
	"testing"

	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func validRequest() apitype.UpdateUserFilterRQ {
	return apitype.UpdateUserFilterRQ{
		Name:       "smoke launches",
		ObjectType: "Launch",
		Conditions: []apitype.FilterCondition{{Condition: "cnt", FilteringField: "name", Value: "smoke"}},
		Orders:     []apitype.FilterOrder{{SortingColumn: "startTime"}},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validate(validRequest()))

	cases := map[string]func(rq *apitype.UpdateUserFilterRQ){
		"short name":        func(rq *apitype.UpdateUserFilterRQ) { rq.Name = "ab" },
		"item target":       func(rq *apitype.UpdateUserFilterRQ) { rq.ObjectType = "TestItem" },
		"no conditions":     func(rq *apitype.UpdateUserFilterRQ) { rq.Conditions = nil },
		"no orders":         func(rq *apitype.UpdateUserFilterRQ) { rq.Orders = nil },
		"unknown field":     func(rq *apitype.UpdateUserFilterRQ) { rq.Conditions[0].FilteringField = "color" },
		"unknown condition": func(rq *apitype.UpdateUserFilterRQ) { rq.Conditions[0].Condition = "like" },
		"unknown order":     func(rq *apitype.UpdateUserFilterRQ) { rq.Orders[0].SortingColumn = "color" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			rq := validRequest()
			mutate(&rq)
			assert.True(t, rperrors.Is(validate(rq), rperrors.BadSaveUserFilterRequest))
		})
	}
}

func TestOptions(t *testing.T) {
	rq := validRequest()
	rq.Orders[0].IsAsc = true
	conditions, err := models.ToJSONB(rq.Conditions)
	require.NoError(t, err)
	orders, err := models.ToJSONB(rq.Orders)
	require.NoError(t, err)

	opts, err := Options([]models.UserFilter{{Conditions: conditions, Orders: orders}, {Conditions: pgtype.JSONB{Status: pgtype.Null}}})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "startTime", opts[0].SortField)
	assert.Equal(t, apitype.SortAscending, opts[0].Sort)
	require.Len(t, opts[0].Filter.Items, 1)
	assert.Equal(t, filter.OperatorContains, opts[0].Filter.Items[0].Operator)
	assert.Empty(t, opts[1].Filter.Items)
}
