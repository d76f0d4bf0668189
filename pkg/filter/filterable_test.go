package filter

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/rperrors"
)

var testColumns = ColumnMap{
	"name":       {Expr: "launches.name", Type: apitype.ColumnTypeString},
	"number":     {Expr: "launches.number", Type: apitype.ColumnTypeNumerical},
	"startTime":  {Expr: "launches.start_time", Type: apitype.ColumnTypeTimestamp},
	"attributes": {Expr: "ARRAY(SELECT key || ':' || value FROM item_attributes WHERE launch_id = launches.id)", Type: apitype.ColumnTypeArray},
}

func TestLinkOperator(t *testing.T) {
	launch := apitype.LaunchFilterable{
		ID:     1,
		Name:   "smoke-aws",
		Number: 42,
		Attributes: []apitype.ItemAttributeResource{
			{Key: "platform", Value: "aws"},
			{Value: "nightly"},
		},
	}

	cases := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{
			name: "name_contains_AND_number_greater_false",
			filter: Filter{
				Items: []FilterItem{
					{Field: "name", Operator: OperatorContains, Value: "SMOKE"},
					{Field: "number", Operator: OperatorArithmeticGreaterThan, Value: "50"},
				},
				LinkOperator: LinkOperatorAnd,
			},
			expected: false,
		},
		{
			name: "name_contains_OR_number_greater_true",
			filter: Filter{
				Items: []FilterItem{
					{Field: "name", Operator: OperatorContains, Value: "smoke"},
					{Field: "number", Operator: OperatorArithmeticGreaterThan, Value: "50"},
				},
				LinkOperator: LinkOperatorOr,
			},
			expected: true,
		},
		{
			name: "not_equals_name",
			filter: Filter{
				Items: []FilterItem{
					{Field: "name", Not: true, Operator: OperatorArithmeticEquals, Value: "smoke-aws"},
				},
			},
			expected: false,
		},
		{
			name: "attributes_has_all",
			filter: Filter{
				Items: []FilterItem{
					{Field: "attributes", Operator: OperatorHas, Value: "platform:aws,nightly"},
				},
			},
			expected: true,
		},
		{
			name: "attributes_has_missing",
			filter: Filter{
				Items: []FilterItem{
					{Field: "attributes", Operator: OperatorHas, Value: "platform:aws,weekly"},
				},
			},
			expected: false,
		},
		{
			name: "attributes_in_any",
			filter: Filter{
				Items: []FilterItem{
					{Field: "attributes", Operator: OperatorIn, Value: "weekly,nightly"},
				},
			},
			expected: true,
		},
		{
			name: "number_between",
			filter: Filter{
				Items: []FilterItem{
					{Field: "number", Operator: OperatorBetween, Value: "40,45"},
				},
			},
			expected: true,
		},
		{
			name: "name_in",
			filter: Filter{
				Items: []FilterItem{
					{Field: "name", Operator: OperatorIn, Value: "a, smoke-aws"},
				},
			},
			expected: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tc.filter.Filter(launch)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		condition string
		value     string
		expected  FilterItem
		wantErr   bool
	}{
		{condition: "eq", value: "x", expected: FilterItem{Field: "name", Operator: OperatorArithmeticEquals, Value: "x"}},
		{condition: "!cnt", value: "x", expected: FilterItem{Field: "name", Not: true, Operator: OperatorContains, Value: "x"}},
		{condition: "ex", value: "false", expected: FilterItem{Field: "name", Operator: OperatorIsEmpty, Value: "false"}},
		{condition: "HAS", value: "a,b", expected: FilterItem{Field: "name", Operator: OperatorHas, Value: "a,b"}},
		{condition: "like", value: "x", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.condition, func(t *testing.T) {
			item, err := ParseCondition(tc.condition, "name", tc.value)
			if tc.wantErr {
				assert.True(t, rperrors.Is(err, rperrors.IncorrectFilterParameters))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, item)
		})
	}
}

func TestFilterOptionsFromQuery(t *testing.T) {
	query := url.Values{
		"filter.cnt.name":  []string{"smoke"},
		"filter.!eq.mode":  []string{"DEBUG"},
		"page.page":        []string{"3"},
		"page.size":        []string{"1000"},
		"page.sort":        []string{"number,ASC"},
		"unrelated.option": []string{"ignored"},
	}

	opts, err := FilterOptionsFromQuery(query, "startTime", apitype.SortDescending)
	require.NoError(t, err)
	assert.Len(t, opts.Filter.Items, 2)
	assert.Equal(t, 3, opts.Page)
	assert.Equal(t, MaxPageSize, opts.PageSize)
	assert.Equal(t, 2*MaxPageSize, opts.Offset())
	assert.Equal(t, "number", opts.SortField)
	assert.Equal(t, apitype.SortAscending, opts.Sort)

	opts, err = FilterOptionsFromQuery(url.Values{}, "startTime", apitype.SortDescending)
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, DefaultPageSize, opts.PageSize)
	assert.Equal(t, 0, opts.Offset())
	assert.Equal(t, "startTime", opts.SortField)

	_, err = FilterOptionsFromQuery(url.Values{"page.page": []string{"0"}}, "", "")
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))

	_, err = FilterOptionsFromQuery(url.Values{"filter.eq": []string{"x"}}, "", "")
	assert.True(t, rperrors.Is(err, rperrors.IncorrectFilterParameters))
}

func TestFromConditions(t *testing.T) {
	opts, err := FromConditions(
		[]apitype.FilterCondition{{Condition: "cnt", FilteringField: "name", Value: "smoke"}},
		[]apitype.FilterOrder{{SortingColumn: "number", IsAsc: true}},
	)
	require.NoError(t, err)
	assert.Equal(t, []FilterItem{{Field: "name", Operator: OperatorContains, Value: "smoke"}}, opts.Filter.Items)
	assert.Equal(t, "number", opts.SortField)
	assert.Equal(t, apitype.SortAscending, opts.Sort)
}

func TestFilterItemToSQL(t *testing.T) {
	cases := []struct {
		name         string
		item         FilterItem
		expectedExpr string
		expectedArgs []interface{}
	}{
		{
			name:         "contains_escapes_like",
			item:         FilterItem{Field: "name", Operator: OperatorContains, Value: "50%_done"},
			expectedExpr: "launches.name ILIKE ?",
			expectedArgs: []interface{}{`%50\%\_done%`},
		},
		{
			name:         "negated_number",
			item:         FilterItem{Field: "number", Not: true, Operator: OperatorArithmeticGreaterThanOrEquals, Value: "3"},
			expectedExpr: "NOT (launches.number >= ?)",
			expectedArgs: []interface{}{"3"},
		},
		{
			name:         "timestamp_millis",
			item:         FilterItem{Field: "startTime", Operator: OperatorArithmeticLessThan, Value: "1700000000000"},
			expectedExpr: "launches.start_time < ?",
			expectedArgs: []interface{}{time.UnixMilli(1700000000000).UTC()},
		},
		{
			name:         "attributes_has",
			item:         FilterItem{Field: "attributes", Operator: OperatorHas, Value: `os:linux,a"b`},
			expectedExpr: testColumns["attributes"].Expr + " @> ?::text[]",
			expectedArgs: []interface{}{`{"os:linux","a\"b"}`},
		},
		{
			name:         "name_in",
			item:         FilterItem{Field: "name", Operator: OperatorIn, Value: "a,b"},
			expectedExpr: "launches.name IN ?",
			expectedArgs: []interface{}{[]string{"a", "b"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expr, args, err := tc.item.toSQL(testColumns)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedExpr, expr)
			assert.Equal(t, tc.expectedArgs, args)
		})
	}

	_, _, err := FilterItem{Field: "secret", Operator: OperatorArithmeticEquals}.toSQL(testColumns)
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("1700000000000,1700000060000", apitype.ColumnTypeTimestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), from)
	assert.Equal(t, time.UnixMilli(1700000060000).UTC(), to)

	from, to, err = parseRange("-1440;0;+0000", apitype.ColumnTypeTimestamp)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, to.(time.Time).Sub(from.(time.Time)))

	_, _, err = parseRange("1", apitype.ColumnTypeNumerical)
	assert.Error(t, err)
}
