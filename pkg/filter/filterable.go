package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
)

// LinkOperator determines how to chain multiple filters together, 'AND' and 'OR'
// are supported.
type LinkOperator string

const (
	LinkOperatorAnd LinkOperator = "and"
	LinkOperatorOr  LinkOperator = "or"
)

// Operator defines an operator used for filter items such as equals, contains, etc,
// as well as the arithmetic operators like ==, !=, >, etc.
type Operator string

const (
	OperatorContains   Operator = "contains"
	OperatorEquals     Operator = "equals"
	OperatorStartsWith Operator = "starts with"
	OperatorEndsWith   Operator = "ends with"
	OperatorIsEmpty    Operator = "is empty"
	OperatorIsNotEmpty Operator = "is not empty"
	OperatorIn         Operator = "in"
	OperatorHas        Operator = "has"
	OperatorBetween    Operator = "between"

	OperatorArithmeticEquals              Operator = "="
	OperatorArithmeticNotEquals           Operator = "!="
	OperatorArithmeticGreaterThan         Operator = ">"
	OperatorArithmeticGreaterThanOrEquals Operator = ">="
	OperatorArithmeticLessThan            Operator = "<"
	OperatorArithmeticLessThanOrEquals    Operator = "<="
)

// Filter is a collection of FilterItem, with a link operator. It is used to chain
// filters together, for example: where name contains smoke and number > 10.
type Filter struct {
	Items        []FilterItem `json:"items"`
	LinkOperator LinkOperator `json:"linkOperator"`
}

// FilterItem is an individual filter consisting of a field, operator,
// value and a not boolean that negates the operator. For example:
// name contains smoke, or name not contains smoke.
type FilterItem struct {
	Field    string   `json:"columnField"`
	Not      bool     `json:"not"`
	Operator Operator `json:"operatorValue"`
	Value    string   `json:"value"`
}

// Filterable interface is for anything that can be filtered in memory, it needs to
// support querying the type and value of fields.
type Filterable interface {
	GetFieldType(param string) apitype.ColumnType
	GetStringValue(param string) (string, error)
	GetNumericalValue(param string) (float64, error)
	GetArrayValue(param string) ([]string, error)
}

// Columns maps API field names to SQL expressions for database filtering.
type Columns interface {
	GetFieldType(param string) apitype.ColumnType
	Column(param string) (string, bool)
}

// toSQL renders the item as a boolean SQL expression with its arguments.
func (f FilterItem) toSQL(columns Columns) (string, []interface{}, error) {
	column, ok := columns.Column(f.Field)
	if !ok {
		return "", nil, fmt.Errorf("unknown filter field %q", f.Field)
	}
	fieldType := columns.GetFieldType(f.Field)

	value := func(v string) (interface{}, error) {
		if fieldType == apitype.ColumnTypeTimestamp {
			return parseTimestamp(v)
		}
		return v, nil
	}

	var expr string
	var args []interface{}
	switch f.Operator {
	case OperatorContains:
		// "contains" is an overloaded operator: 1) see if an array field contains an item,
		// 2) string contains a substring, so we need to know the field type.
		if fieldType == apitype.ColumnTypeArray {
			expr = fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS v WHERE v ILIKE ?)", column)
		} else {
			expr = fmt.Sprintf("%s ILIKE ?", column)
		}
		args = append(args, "%"+escapeLike(f.Value)+"%")
	case OperatorHas:
		values := splitValues(f.Value)
		expr = fmt.Sprintf("%s @> ?::text[]", column)
		args = append(args, "{"+strings.Join(quoteArrayValues(values), ",")+"}")
	case OperatorIn:
		values := splitValues(f.Value)
		if fieldType == apitype.ColumnTypeArray {
			expr = fmt.Sprintf("%s && ?::text[]", column)
			args = append(args, "{"+strings.Join(quoteArrayValues(values), ",")+"}")
		} else {
			expr = fmt.Sprintf("%s IN ?", column)
			args = append(args, values)
		}
	case OperatorEquals, OperatorArithmeticEquals:
		v, err := value(f.Value)
		if err != nil {
			return "", nil, err
		}
		expr = fmt.Sprintf("%s = ?", column)
		args = append(args, v)
	case OperatorArithmeticNotEquals:
		v, err := value(f.Value)
		if err != nil {
			return "", nil, err
		}
		expr = fmt.Sprintf("%s <> ?", column)
		args = append(args, v)
	case OperatorArithmeticGreaterThan, OperatorArithmeticGreaterThanOrEquals,
		OperatorArithmeticLessThan, OperatorArithmeticLessThanOrEquals:
		v, err := value(f.Value)
		if err != nil {
			return "", nil, err
		}
		expr = fmt.Sprintf("%s %s ?", column, f.Operator)
		args = append(args, v)
	case OperatorBetween:
		from, to, err := parseRange(f.Value, fieldType)
		if err != nil {
			return "", nil, err
		}
		expr = fmt.Sprintf("%s BETWEEN ? AND ?", column)
		args = append(args, from, to)
	case OperatorStartsWith:
		expr = fmt.Sprintf("%s ILIKE ?", column)
		args = append(args, escapeLike(f.Value)+"%")
	case OperatorEndsWith:
		expr = fmt.Sprintf("%s ILIKE ?", column)
		args = append(args, "%"+escapeLike(f.Value))
	case OperatorIsEmpty:
		if fieldType == apitype.ColumnTypeArray {
			expr = fmt.Sprintf("cardinality(%s) = 0", column)
		} else {
			expr = fmt.Sprintf("%s IS NULL", column)
		}
	case OperatorIsNotEmpty:
		if fieldType == apitype.ColumnTypeArray {
			expr = fmt.Sprintf("cardinality(%s) > 0", column)
		} else {
			expr = fmt.Sprintf("%s IS NOT NULL", column)
		}
	default:
		return "", nil, fmt.Errorf("unknown operator %q", f.Operator)
	}

	if f.Not {
		expr = "NOT (" + expr + ")"
	}
	return expr, args, nil
}

// ToSQL applies the filter to the query.
func (filters Filter) ToSQL(db *gorm.DB, columns Columns) (*gorm.DB, error) {
	if len(filters.Items) == 0 {
		return db, nil
	}

	exprs := make([]string, 0, len(filters.Items))
	var args []interface{}
	for _, f := range filters.Items {
		expr, a, err := f.toSQL(columns)
		if err != nil {
			return nil, err
		}
		if filters.LinkOperator == LinkOperatorOr {
			exprs = append(exprs, "("+expr+")")
			args = append(args, a...)
		} else {
			db = db.Where(expr, a...)
		}
	}

	if filters.LinkOperator == LinkOperatorOr {
		db = db.Where(strings.Join(exprs, " OR "), args...)
	}
	return db, nil
}

// Filter applies the selected filters to a filterable item.
func (filters Filter) Filter(item Filterable) (bool, error) {
	if len(filters.Items) == 0 {
		return true, nil
	}

	matches := make([]bool, 0)

	for _, filter := range filters.Items {
		var result bool
		var err error

		log.Tracef("applying filter: %s %s %s", filter.Field, filter.Operator, filter.Value)
		filterType := item.GetFieldType(filter.Field)
		switch filterType {
		case apitype.ColumnTypeString:
			result, err = filterString(filter, item)
		case apitype.ColumnTypeNumerical, apitype.ColumnTypeTimestamp:
			result, err = filterNumerical(filter, item)
		case apitype.ColumnTypeArray:
			result, err = filterArray(filter, item)
		default:
			return false, fmt.Errorf("%s: unknown field or field type", filter.Field)
		}
		if err != nil {
			log.WithError(err).Tracef("could not filter field %s", filter.Field)
			return false, err
		}

		if filter.Not {
			matches = append(matches, !result)
		} else {
			matches = append(matches, result)
		}
	}

	if filters.LinkOperator == LinkOperatorOr {
		for _, value := range matches {
			if value {
				return true, nil
			}
		}
		return false, nil
	}

	// LinkOperator as "and" is the default:
	for _, value := range matches {
		if !value {
			return false, nil
		}
	}
	return true, nil
}

func filterString(filter FilterItem, item Filterable) (bool, error) {
	value, err := item.GetStringValue(filter.Field)
	if err != nil {
		return false, err
	}

	comparison := filter.Value

	switch filter.Operator {
	case OperatorContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(comparison)), nil
	case OperatorEquals, OperatorArithmeticEquals:
		return strings.TrimSpace(value) == comparison, nil
	case OperatorArithmeticNotEquals:
		return strings.TrimSpace(value) != comparison, nil
	case OperatorStartsWith:
		return strings.HasPrefix(value, comparison), nil
	case OperatorEndsWith:
		return strings.HasSuffix(value, comparison), nil
	case OperatorIn:
		for _, v := range splitValues(comparison) {
			if v == value {
				return true, nil
			}
		}
		return false, nil
	case OperatorIsEmpty:
		return value == "", nil
	case OperatorIsNotEmpty:
		return value != "", nil
	default:
		return false, fmt.Errorf("unknown string field operator %s", filter.Operator)
	}
}

func filterNumerical(filter FilterItem, item Filterable) (bool, error) {
	if filter.Value == "" && filter.Operator != OperatorIsEmpty && filter.Operator != OperatorIsNotEmpty {
		return true, nil
	}

	value, err := item.GetNumericalValue(filter.Field)
	if err != nil {
		return false, err
	}

	if filter.Operator == OperatorBetween {
		from, to, err := parseNumericRange(filter.Value)
		if err != nil {
			return false, err
		}
		return value >= from && value <= to, nil
	}

	var comparison float64
	if filter.Operator != OperatorIsEmpty && filter.Operator != OperatorIsNotEmpty {
		comparison, err = strconv.ParseFloat(filter.Value, 64)
		if err != nil {
			return false, err
		}
	}

	switch filter.Operator {
	case OperatorArithmeticEquals, OperatorEquals:
		return value == comparison, nil
	case OperatorArithmeticNotEquals:
		return value != comparison, nil
	case OperatorArithmeticGreaterThan:
		return value > comparison, nil
	case OperatorArithmeticLessThan:
		return value < comparison, nil
	case OperatorArithmeticGreaterThanOrEquals:
		return value >= comparison, nil
	case OperatorArithmeticLessThanOrEquals:
		return value <= comparison, nil
	case OperatorIsEmpty:
		return value == 0, nil
	case OperatorIsNotEmpty:
		return value != 0, nil
	default:
		return false, fmt.Errorf("unknown numeric field operator %s", filter.Operator)
	}
}

func filterArray(filter FilterItem, item Filterable) (bool, error) {
	list, err := item.GetArrayValue(filter.Field)
	if err != nil {
		return false, err
	}

	switch filter.Operator {
	case OperatorHas:
		for _, wanted := range splitValues(filter.Value) {
			found := false
			for _, value := range list {
				if value == wanted {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case OperatorIn:
		for _, wanted := range splitValues(filter.Value) {
			for _, value := range list {
				if value == wanted {
					return true, nil
				}
			}
		}
		return false, nil
	case OperatorIsEmpty:
		return len(list) == 0, nil
	case OperatorIsNotEmpty:
		return len(list) > 0, nil
	}

	for _, value := range list {
		if strings.Contains(value, filter.Value) {
			return true, nil
		}
	}

	return false, nil
}

func Compare(a, b Filterable, sortField string) bool {
	kind := a.GetFieldType(sortField)

	if kind == apitype.ColumnTypeNumerical || kind == apitype.ColumnTypeTimestamp {
		val1, err := a.GetNumericalValue(sortField)
		if err != nil {
			log.WithError(err).Error("error comparing values")
		}

		val2, err := b.GetNumericalValue(sortField)
		if err != nil {
			log.WithError(err).Error("error comparing values")
		}

		return val1 < val2
	}

	if kind == apitype.ColumnTypeString {
		val1, err := a.GetStringValue(sortField)
		if err != nil {
			log.WithError(err).Error("error comparing values")
		}

		val2, err := b.GetStringValue(sortField)
		if err != nil {
			log.WithError(err).Error("error comparing values")
		}

		return val1 < val2
	}

	return false
}

func splitValues(v string) []string {
	parts := strings.Split(v, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

func quoteArrayValues(values []string) []string {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return quoted
}

func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

// parseTimestamp accepts epoch milliseconds or RFC3339.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
	}
	return t, nil
}

// parseRange reads "from,to" or "from;to". For timestamps, a range of two negative or
// small numbers followed by a time zone offset, like "-1440;1440;+0300", is relative to the
// start of the current day in minutes.
func parseRange(v string, fieldType apitype.ColumnType) (interface{}, interface{}, error) {
	sep := ","
	if strings.Contains(v, ";") {
		sep = ";"
	}
	parts := strings.Split(v, sep)
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("invalid range %q", v)
	}

	if fieldType != apitype.ColumnTypeTimestamp {
		from, to, err := parseNumericRange(parts[0] + "," + parts[1])
		return from, to, err
	}

	if len(parts) == 3 {
		fromMin, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		toMin, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		offset, err3 := time.Parse("-0700", strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, nil, fmt.Errorf("invalid relative range %q", v)
		}
		now := time.Now().In(offset.Location())
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return midnight.Add(time.Duration(fromMin) * time.Minute).UTC(),
			midnight.Add(time.Duration(toMin) * time.Minute).UTC(), nil
	}

	from, err := parseTimestamp(parts[0])
	if err != nil {
		return nil, nil, err
	}
	to, err := parseTimestamp(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseNumericRange(v string) (float64, float64, error) {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range %q", v)
	}
	from, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
