package projects

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// MaxSubTypesPerGroup includes the default type of the group.
const MaxSubTypesPerGroup = 15

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func groupPrefix(g apitype.IssueGroup) string {
	return g.Locator()[:2]
}

// isDefaultType reports whether the issue type is the predefined type of its group.
func isDefaultType(it models.IssueType) bool {
	return it.Locator == apitype.IssueGroup(it.IssueGroup).Locator()
}

func validateSubType(group apitype.IssueGroup, longName, shortName, color string) error {
	if group.Locator() == "" {
		return rperrors.New(rperrors.IssueTypeNotFound, group)
	}
	if l := len(strings.TrimSpace(longName)); l < 3 || l > 55 {
		return rperrors.New(rperrors.IncorrectRequest, "Long name should have size from 3 to 55")
	}
	if l := len(strings.TrimSpace(shortName)); l < 1 || l > 4 {
		return rperrors.New(rperrors.IncorrectRequest, "Short name should have size from 1 to 4")
	}
	if !colorPattern.MatchString(color) {
		return rperrors.New(rperrors.IncorrectRequest, "Color should be a hex value like #ffb743")
	}
	return nil
}

// CreateSubType adds a custom defect type to a group.
func (m *Manager) CreateSubType(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.CreateIssueSubTypeRQ) (*apitype.EntryCreatedRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	group := apitype.IssueGroup(strings.ToUpper(string(rq.TypeRef)))
	if err := validateSubType(group, rq.LongName, rq.ShortName, rq.Color); err != nil {
		return nil, err
	}

	subType := models.IssueType{
		ProjectID:  project.ID,
		IssueGroup: string(group),
		Locator:    groupPrefix(group) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:21],
		LongName:   strings.TrimSpace(rq.LongName),
		ShortName:  strings.ToUpper(strings.TrimSpace(rq.ShortName)),
		Color:      rq.Color,
	}
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if res := tx.Model(&models.IssueType{}).Where("project_id = ? AND issue_group = ?", project.ID, string(group)).Count(&count); res.Error != nil {
			return res.Error
		}
		if count >= MaxSubTypesPerGroup {
			return rperrors.New(rperrors.IncorrectRequest, fmt.Sprintf("Sub Issues count exceed allowed limit %d", MaxSubTypesPerGroup))
		}
		return tx.Create(&subType).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionCreateDefect, activities.ObjectDefectType, subType.ID, subType.LongName, nil)
	return &apitype.EntryCreatedRS{ID: subType.ID}, nil
}

// UpdateSubTypes changes names and colors of custom defect types.
func (m *Manager) UpdateSubTypes(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.UpdateIssueSubTypeRQ) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	if len(rq.IDs) == 0 {
		return nil, rperrors.New(rperrors.ForbiddenOperation, "Please specify at least one item data for update.")
	}
	var updated []string
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, one := range rq.IDs {
			var it models.IssueType
			if res := tx.Where("project_id = ? AND locator = ?", project.ID, one.Locator).First(&it); res.Error != nil {
				if errors.Is(res.Error, gorm.ErrRecordNotFound) {
					return rperrors.New(rperrors.IssueTypeNotFound, one.Locator)
				}
				return res.Error
			}
			if isDefaultType(it) {
				return rperrors.New(rperrors.ForbiddenOperation, fmt.Sprintf("Default issue type '%s' cannot be changed", it.Locator))
			}
			if one.TypeRef != "" && !strings.EqualFold(string(one.TypeRef), it.IssueGroup) {
				return rperrors.New(rperrors.ForbiddenOperation, "The group of an issue type cannot be changed")
			}
			if err := validateSubType(apitype.IssueGroup(it.IssueGroup), one.LongName, one.ShortName, one.Color); err != nil {
				return err
			}
			res := tx.Model(&it).Updates(map[string]interface{}{
				"long_name":  strings.TrimSpace(one.LongName),
				"short_name": strings.ToUpper(strings.TrimSpace(one.ShortName)),
				"color":      one.Color,
			})
			if res.Error != nil {
				return res.Error
			}
			updated = append(updated, it.Locator)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, locator := range updated {
		m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateDefect, activities.ObjectDefectType, 0, locator, nil)
	}
	return &apitype.OperationCompletionRS{Message: "Issue sub-type(s) was updated successfully."}, nil
}

// DeleteSubType removes a custom defect type. Items of that type fall back to the default
// type of the group, statistics included.
func (m *Manager) DeleteSubType(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	var it models.IssueType
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Where("project_id = ? AND id = ?", project.ID, id).First(&it); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return rperrors.New(rperrors.IssueTypeNotFound, id)
			}
			return res.Error
		}
		if isDefaultType(it) {
			return rperrors.New(rperrors.ForbiddenOperation, "You cannot remove predefined global issue types.")
		}
		group := apitype.IssueGroup(it.IssueGroup)
		var fallback models.IssueType
		if res := tx.Where("project_id = ? AND locator = ?", project.ID, group.Locator()).First(&fallback); res.Error != nil {
			return res.Error
		}
		if res := tx.Model(&models.Issue{}).Where("issue_type_id = ?", it.ID).Update("issue_type_id", fallback.ID); res.Error != nil {
			return res.Error
		}
		return moveDefectCounters(tx, project.ID, apitype.DefectField(group, it.Locator), apitype.DefectField(group, fallback.Locator))
	})
	if err != nil {
		return nil, err
	}
	if res := m.dbc.DB.WithContext(ctx).Delete(&it); res.Error != nil {
		return nil, res.Error
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionDeleteDefect, activities.ObjectDefectType, it.ID, it.LongName, nil)
	return &apitype.OperationCompletionRS{Message: "Issue sub-type delete operation completed successfully"}, nil
}

// moveDefectCounters adds the counters of one defect field to another for all items and
// launches of the project, then drops the old field.
func moveDefectCounters(tx *gorm.DB, projectID uint, from, to string) error {
	stmts := []string{
		`INSERT INTO item_statistics (item_id, field, counter)
			SELECT s.item_id, ?, s.counter FROM item_statistics s
			JOIN test_items ti ON ti.id = s.item_id JOIN launches l ON l.id = ti.launch_id
			WHERE l.project_id = ? AND s.field = ?
		ON CONFLICT (item_id, field) DO UPDATE SET counter = item_statistics.counter + EXCLUDED.counter`,
		`INSERT INTO launch_statistics (launch_id, field, counter)
			SELECT s.launch_id, ?, s.counter FROM launch_statistics s
			JOIN launches l ON l.id = s.launch_id
			WHERE l.project_id = ? AND s.field = ?
		ON CONFLICT (launch_id, field) DO UPDATE SET counter = launch_statistics.counter + EXCLUDED.counter`,
	}
	for _, stmt := range stmts {
		if res := tx.Exec(stmt, to, projectID, from); res.Error != nil {
			return res.Error
		}
	}
	if res := tx.Exec(`DELETE FROM item_statistics WHERE field = ? AND item_id IN
		(SELECT ti.id FROM test_items ti JOIN launches l ON l.id = ti.launch_id WHERE l.project_id = ?)`, from, projectID); res.Error != nil {
		return res.Error
	}
	return tx.Exec(`DELETE FROM launch_statistics WHERE field = ? AND launch_id IN
		(SELECT id FROM launches WHERE project_id = ?)`, from, projectID).Error
}
