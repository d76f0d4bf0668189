package api

import (
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/filter"
)

// FilteredPage counts the rows matching the filter options, loads the requested page and
// converts it with convertFn.
func FilteredPage[M any, R any](q *gorm.DB, opts *filter.FilterOptions, columns filter.Columns,
	convertFn func([]M) ([]R, error)) (apitype.Page[R], error) {
	counted, err := filter.FilteredQuery(q.Session(&gorm.Session{}), opts, columns)
	if err != nil {
		return apitype.Page[R]{}, err
	}
	var total int64
	if res := counted.Count(&total); res.Error != nil {
		return apitype.Page[R]{}, res.Error
	}

	paged, err := filter.FilterableDBResult(q.Session(&gorm.Session{}), opts, columns)
	if err != nil {
		return apitype.Page[R]{}, err
	}
	var rows []M
	if res := paged.Find(&rows); res.Error != nil {
		return apitype.Page[R]{}, res.Error
	}
	content, err := convertFn(rows)
	if err != nil {
		return apitype.Page[R]{}, err
	}
	if content == nil {
		content = []R{}
	}
	return apitype.NewPage(content, opts.Page, opts.PageSize, total), nil
}

// Visible scopes q to the rows of a project that login owns or that are shared.
func Visible(q *gorm.DB, table string, projectID uint, login string) *gorm.DB {
	return q.Where(table+".project_id = ? AND ("+table+".owner = ? OR "+table+".shared)", projectID, login)
}
