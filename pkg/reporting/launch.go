package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const durationSampleSize = 5

// StartLaunch opens a new launch, or reopens an earlier one when rerun is requested.
func (s *Service) StartLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error) {
	if err := validateStartLaunch(rq); err != nil {
		return nil, err
	}

	if rq.Rerun {
		rs, err := s.rerunLaunch(ctx, project, rq)
		if err != nil || rs != nil {
			return rs, err
		}
	}

	launch := &models.Launch{
		UUID:        rq.UUID,
		ProjectID:   project.ID,
		UserID:      user.ID,
		Name:        strings.TrimSpace(rq.Name),
		Description: rq.Description,
		Mode:        string(rq.Mode),
		Status:      string(apitype.StatusInProgress),
		StartTime:   rq.StartTime.UTC(),
	}
	if launch.UUID == "" {
		launch.UUID = uuid.NewString()
	}
	if launch.Mode == "" {
		launch.Mode = string(apitype.LaunchModeDefault)
	}

	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serializes numbering of launches with the same name
		if res := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", int32(project.ID), TestCaseHash(launch.Name)); res.Error != nil {
			return res.Error
		}
		number, err := query.NextLaunchNumber(tx, project.ID, launch.Name)
		if err != nil {
			return err
		}
		launch.Number = number
		launch.ApproximateDuration = approximateDuration(tx, project.ID, launch.Name)

		if res := tx.Omit("Attributes", "User", "Statistics").Create(launch); res.Error != nil {
			return res.Error
		}
		attrs := AttributesToModels(rq.Attributes, &launch.ID, nil)
		if len(attrs) > 0 {
			if res := tx.Create(&attrs); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("launch", launch.Name).Error("error starting launch")
		return nil, err
	}

	log.WithFields(log.Fields{"uuid": launch.UUID, "number": launch.Number, "project": project.Name}).Info("launch started")
	s.bus.Publish(ctx, events.Event{Type: events.LaunchStarted, ProjectID: project.ID, Login: user.Login, Launch: launch})
	return &apitype.StartLaunchRS{ID: launch.UUID, Number: launch.Number}, nil
}

// rerunLaunch reopens the launch named by rerunOf, or the latest launch with the same name.
// It returns nil when there is nothing to rerun and a new launch should be started.
func (s *Service) rerunLaunch(ctx context.Context, project *auth.ProjectDetails, rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error) {
	var launch models.Launch
	q := s.dbc.DB.WithContext(ctx).Where("project_id = ?", project.ID)
	if rq.RerunOf != "" {
		q = q.Where("uuid = ?", rq.RerunOf)
	} else {
		q = q.Where("name = ?", strings.TrimSpace(rq.Name)).Order("number DESC")
	}
	if res := q.First(&launch); res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			if rq.RerunOf != "" {
				return nil, rperrors.New(rperrors.LaunchNotFound, rq.RerunOf)
			}
			return nil, nil
		}
		return nil, res.Error
	}

	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":   string(apitype.StatusInProgress),
			"end_time": nil,
			"rerun":    true,
		}
		if rq.Description != "" {
			updates["description"] = rq.Description
		}
		if rq.Mode != "" {
			updates["mode"] = string(rq.Mode)
		}
		if res := tx.Model(&launch).Updates(updates); res.Error != nil {
			return res.Error
		}
		return s.appendLaunchAttributes(tx, &launch, rq.Attributes)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"uuid": launch.UUID, "number": launch.Number}).Info("launch rerun started")
	return &apitype.StartLaunchRS{ID: launch.UUID, Number: launch.Number}, nil
}

func (s *Service) appendLaunchAttributes(tx *gorm.DB, launch *models.Launch, attrs []apitype.ItemAttributeResource) error {
	if len(attrs) == 0 {
		return nil
	}
	var existing []models.ItemAttribute
	if res := tx.Where("launch_id = ?", launch.ID).Find(&existing); res.Error != nil {
		return res.Error
	}
	missing := MissingAttributes(existing, AttributesToModels(attrs, &launch.ID, nil))
	if len(missing) == 0 {
		return nil
	}
	return tx.Create(&missing).Error
}

// approximateDuration averages the duration in seconds of the last finished launches with
// the same name.
func approximateDuration(tx *gorm.DB, projectID uint, name string) float64 {
	var avg *float64
	res := tx.Raw(`SELECT AVG(EXTRACT(EPOCH FROM (end_time - start_time))) FROM (
			SELECT start_time, end_time FROM launches
			WHERE project_id = ? AND name = ? AND end_time IS NOT NULL AND status <> ?
			ORDER BY number DESC LIMIT ?) recent`,
		projectID, name, string(apitype.StatusInProgress), durationSampleSize).Scan(&avg)
	if res.Error != nil {
		log.WithError(res.Error).Warn("could not compute approximate launch duration")
		return 0
	}
	if avg == nil {
		return 0
	}
	return *avg
}

// FinishLaunch closes a launch. Items still in progress are interrupted, and the launch
// status is computed from its items unless the request provides one and nothing had to be
// interrupted.
func (s *Service) FinishLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	launchUUID string, rq apitype.FinishExecutionRQ, baseURL string) (*apitype.FinishLaunchRS, error) {
	var launch *models.Launch
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Exec("SELECT id FROM launches WHERE uuid = ? FOR UPDATE", launchUUID); res.Error != nil {
			return res.Error
		}
		var err error
		launch, err = query.LaunchByUUID(tx, launchUUID)
		if err != nil {
			return err
		}
		if launch == nil {
			return rperrors.New(rperrors.LaunchNotFound, launchUUID)
		}
		if err := validateFinishLaunch(user, project, launch, rq); err != nil {
			return err
		}
		providedStatus, provided, _ := parseFinishStatus(rq.Status)

		interrupted, err := s.interruptItems(tx, launch, "", rq.EndTime.UTC())
		if err != nil {
			return err
		}

		status := providedStatus
		if interrupted > 0 || !provided {
			if status, err = IdentifyLaunchStatus(tx, launch.ID); err != nil {
				return err
			}
		}
		return s.closeLaunch(tx, launch, status, rq.EndTime.UTC(), rq.Description, rq.Attributes)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"uuid": launch.UUID, "status": launch.Status}).Info("launch finished")
	s.bus.Publish(ctx, events.Event{
		Type:      events.LaunchFinished,
		ProjectID: launch.ProjectID,
		Login:     user.Login,
		BaseURL:   baseURL,
		Launch:    launch,
	})
	return &apitype.FinishLaunchRS{ID: launch.UUID, Number: launch.Number, Link: LaunchLink(baseURL, project.Name, launch.ID)}, nil
}

// LaunchLink is the UI address of a launch.
func LaunchLink(baseURL, projectName string, launchID uint) string {
	return fmt.Sprintf("%s/ui/#%s/launches/all/%d", strings.TrimSuffix(baseURL, "/"), projectName, launchID)
}

func (s *Service) closeLaunch(tx *gorm.DB, launch *models.Launch, status apitype.Status, endTime time.Time,
	description string, attrs []apitype.ItemAttributeResource) error {
	launch.Status = string(status)
	launch.EndTime = &endTime
	launch.Description = appendDescription(launch.Description, description)
	res := tx.Model(launch).Updates(map[string]interface{}{
		"status":      launch.Status,
		"end_time":    endTime,
		"description": launch.Description,
	})
	if res.Error != nil {
		return res.Error
	}
	return s.appendLaunchAttributes(tx, launch, attrs)
}

// StopLaunch force finishes a launch by id, interrupting everything still running.
func (s *Service) StopLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	launchID uint, rq apitype.FinishExecutionRQ) (*apitype.OperationCompletionRS, error) {
	var launch *models.Launch
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Exec("SELECT id FROM launches WHERE id = ? FOR UPDATE", launchID); res.Error != nil {
			return res.Error
		}
		var err error
		launch, err = query.LaunchByID(tx, launchID)
		if err != nil {
			return err
		}
		if launch == nil {
			return rperrors.New(rperrors.LaunchNotFound, launchID)
		}
		if !canModifyLaunch(user, project, launch) {
			return rperrors.New(rperrors.AccessDenied, "You are not launch owner.")
		}
		if launch.Status != string(apitype.StatusInProgress) {
			return rperrors.New(rperrors.FinishLaunchNotAllowed, fmt.Sprintf("Launch '%d' is already stopped", launchID))
		}

		endTime := s.now().UTC()
		if !rq.EndTime.IsZero() {
			endTime = rq.EndTime.UTC()
		}
		status := apitype.StatusStopped
		if st, ok, err := parseFinishStatus(rq.Status); err != nil {
			return err
		} else if ok {
			status = st
		}

		if _, err := s.interruptItems(tx, launch, "", endTime); err != nil {
			return err
		}

		description := rq.Description
		if description == "" {
			description = launch.Description
		}
		launch.Description = ""
		attrs := make([]apitype.ItemAttributeResource, 0, len(rq.Attributes)+1)
		attrs = append(attrs, rq.Attributes...)
		attrs = append(attrs, apitype.ItemAttributeResource{Key: "status", Value: "stopped", System: true})
		return s.closeLaunch(tx, launch, status, endTime, strings.TrimSpace(description+" stopped"), attrs)
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.Event{Type: events.LaunchFinished, ProjectID: launch.ProjectID, Login: user.Login, Launch: launch})
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("Launch with ID = '%d' successfully stopped.", launchID),
	}, nil
}

// BulkStopLaunch stops each launch of the request independently, in id order. A launch that
// cannot be stopped is reported in its own result and does not affect the others.
func (s *Service) BulkStopLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.BulkFinishRQ) []apitype.OperationCompletionRS {
	ids := make([]uint, 0, len(rq.Entities))
	for id := range rq.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]apitype.OperationCompletionRS, 0, len(ids))
	for _, id := range ids {
		rs, err := s.StopLaunch(ctx, user, project, id, rq.Entities[id])
		if err != nil {
			log.WithError(err).WithField("launch", id).Warn("could not stop launch")
			result = append(result, apitype.OperationCompletionRS{Message: err.Error()})
			continue
		}
		result = append(result, *rs)
	}
	return result
}

// interruptItems finishes the in-progress items of a launch, or those below pathPrefix when
// it is set, deepest first so that parents see the final status of their children.
func (s *Service) interruptItems(tx *gorm.DB, launch *models.Launch, pathPrefix string, endTime time.Time) (int, error) {
	var items []models.TestItem
	q := tx.Where("launch_id = ? AND status = ?", launch.ID, string(apitype.StatusInProgress))
	if pathPrefix != "" {
		q = q.Where("path LIKE ?", pathPrefix+".%")
	}
	if res := q.Order("LENGTH(path) DESC, id DESC").Find(&items); res.Error != nil {
		return 0, res.Error
	}

	for i := range items {
		item := &items[i]
		if item.EndTime == nil || item.EndTime.Before(endTime) {
			item.EndTime = &endTime
		}
		hasChildren, err := hasChildItems(tx, item.ID)
		if err != nil {
			return 0, err
		}
		if err := s.completeItem(tx, nil, item, apitype.StatusInterrupted, *item.EndTime, nil, hasChildren); err != nil {
			return 0, err
		}
	}
	return len(items), nil
}

// InterruptLaunch finishes a launch that stopped reporting. Running items and the launch end
// as INTERRUPTED at the end time.
func (s *Service) InterruptLaunch(ctx context.Context, launchID uint, endTime time.Time) error {
	var launch *models.Launch
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Exec("SELECT id FROM launches WHERE id = ? FOR UPDATE", launchID); res.Error != nil {
			return res.Error
		}
		var err error
		launch, err = query.LaunchByID(tx, launchID)
		if err != nil {
			return err
		}
		if launch == nil || launch.Status != string(apitype.StatusInProgress) {
			launch = nil
			return nil
		}
		if _, err := s.interruptItems(tx, launch, "", endTime); err != nil {
			return err
		}
		return s.closeLaunch(tx, launch, apitype.StatusInterrupted, endTime, "", nil)
	})
	if err != nil || launch == nil {
		return err
	}
	s.bus.Publish(ctx, events.Event{Type: events.LaunchFinished, ProjectID: launch.ProjectID, Launch: launch})
	return nil
}
