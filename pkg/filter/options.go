package filter

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 300

	filterParamPrefix = "filter."
)

// conditions maps the short condition names used in query parameters and saved filters
// to filter operators.
var conditions = map[string]Operator{
	"eq":  OperatorArithmeticEquals,
	"ne":  OperatorArithmeticNotEquals,
	"cnt": OperatorContains,
	"gt":  OperatorArithmeticGreaterThan,
	"gte": OperatorArithmeticGreaterThanOrEquals,
	"lt":  OperatorArithmeticLessThan,
	"lte": OperatorArithmeticLessThanOrEquals,
	"btw": OperatorBetween,
	"in":  OperatorIn,
	"has": OperatorHas,
	"ex":  OperatorIsNotEmpty,
}

// Column is a filterable SQL expression and its type.
type Column struct {
	Expr string
	Type apitype.ColumnType
}

// ColumnMap is a whitelist of API fields that may be filtered and sorted on.
type ColumnMap map[string]Column

func (c ColumnMap) GetFieldType(param string) apitype.ColumnType {
	return c[param].Type
}

func (c ColumnMap) Column(param string) (string, bool) {
	col, ok := c[param]
	return col.Expr, ok
}

type FilterOptions struct {
	Filter    *Filter
	SortField string
	Sort      apitype.Sort
	Limit     int
	Page      int
	PageSize  int
}

// Offset of the first row of the requested page.
func (o *FilterOptions) Offset() int {
	if o.Page <= 1 {
		return 0
	}
	return (o.Page - 1) * o.PageSize
}

// ParseCondition turns a condition like "cnt" or "!in" and a field into a filter item.
func ParseCondition(condition, field, value string) (FilterItem, error) {
	item := FilterItem{Field: field, Value: value}
	if strings.HasPrefix(condition, "!") {
		item.Not = true
		condition = strings.TrimPrefix(condition, "!")
	}
	op, ok := conditions[strings.ToLower(condition)]
	if !ok {
		return item, rperrors.New(rperrors.IncorrectFilterParameters, "unknown condition '"+condition+"'")
	}
	item.Operator = op
	if op == OperatorIsNotEmpty && strings.EqualFold(value, "false") {
		item.Operator = OperatorIsEmpty
	}
	return item, nil
}

func FilterOptionsFromRequest(req *http.Request, defaultSortField string, defaultSort apitype.Sort) (*FilterOptions, error) {
	return FilterOptionsFromQuery(req.URL.Query(), defaultSortField, defaultSort)
}

// FilterOptionsFromQuery reads filter.<condition>.<field> parameters and the page.page,
// page.size and page.sort paging parameters.
func FilterOptionsFromQuery(query url.Values, defaultSortField string, defaultSort apitype.Sort) (*FilterOptions, error) {
	filterOpts := &FilterOptions{
		Filter:    &Filter{LinkOperator: LinkOperatorAnd},
		SortField: defaultSortField,
		Sort:      defaultSort,
		Page:      1,
		PageSize:  DefaultPageSize,
	}

	for key, values := range query {
		if !strings.HasPrefix(key, filterParamPrefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(key, filterParamPrefix), ".", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, rperrors.New(rperrors.IncorrectFilterParameters, "bad filter parameter '"+key+"'")
		}
		for _, v := range values {
			item, err := ParseCondition(parts[0], parts[1], v)
			if err != nil {
				return nil, err
			}
			filterOpts.Filter.Items = append(filterOpts.Filter.Items, item)
		}
	}

	if p := query.Get("page.page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			return nil, rperrors.New(rperrors.IncorrectRequest, "page.page must be a positive number")
		}
		filterOpts.Page = page
	}
	if s := query.Get("page.size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 1 {
			return nil, rperrors.New(rperrors.IncorrectRequest, "page.size must be a positive number")
		}
		if size > MaxPageSize {
			size = MaxPageSize
		}
		filterOpts.PageSize = size
	}
	filterOpts.Limit = filterOpts.PageSize

	if s := query.Get("page.sort"); s != "" {
		field, sort := parseSort(s)
		if field != "" {
			filterOpts.SortField = field
		}
		if sort != "" {
			filterOpts.Sort = sort
		}
	}
	return filterOpts, nil
}

func parseSort(s string) (string, apitype.Sort) {
	parts := strings.Split(s, ",")
	field := strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return field, ""
	}
	switch strings.ToLower(strings.TrimSpace(parts[len(parts)-1])) {
	case "desc":
		return field, apitype.SortDescending
	case "asc":
		return field, apitype.SortAscending
	}
	return field, ""
}

// FromConditions builds options from the conditions and orders of a saved filter.
func FromConditions(conds []apitype.FilterCondition, orders []apitype.FilterOrder) (*FilterOptions, error) {
	opts := &FilterOptions{
		Filter:   &Filter{LinkOperator: LinkOperatorAnd},
		Sort:     apitype.SortDescending,
		Page:     1,
		PageSize: MaxPageSize,
	}
	for _, c := range conds {
		item, err := ParseCondition(c.Condition, c.FilteringField, c.Value)
		if err != nil {
			return nil, err
		}
		opts.Filter.Items = append(opts.Filter.Items, item)
	}
	if len(orders) > 0 {
		opts.SortField = orders[0].SortingColumn
		if orders[0].IsAsc {
			opts.Sort = apitype.SortAscending
		}
	}
	return opts, nil
}

// FilteredQuery applies only the filter, suitable for counting.
func FilteredQuery(dbClient *gorm.DB, filterOpts *FilterOptions, columns Columns) (*gorm.DB, error) {
	if filterOpts.Filter == nil {
		return dbClient, nil
	}
	q, err := filterOpts.Filter.ToSQL(dbClient, columns)
	if err != nil {
		return nil, rperrors.New(rperrors.IncorrectFilterParameters, err.Error())
	}
	return q, nil
}

// FilterableDBResult applies the filter, ordering and paging.
func FilterableDBResult(dbClient *gorm.DB, filterOpts *FilterOptions, columns Columns) (*gorm.DB, error) {
	q, err := FilteredQuery(dbClient, filterOpts, columns)
	if err != nil {
		return nil, err
	}

	if filterOpts.SortField != "" {
		col, ok := columns.Column(filterOpts.SortField)
		if !ok {
			return nil, rperrors.New(rperrors.IncorrectSortingParams, filterOpts.SortField)
		}
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col, Raw: true}, Desc: filterOpts.Sort == apitype.SortDescending})
	}

	if filterOpts.Limit > 0 {
		q = q.Limit(filterOpts.Limit)
	}
	if offset := filterOpts.Offset(); offset > 0 {
		q = q.Offset(offset)
	}
	return q, nil
}
