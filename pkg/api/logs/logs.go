// Package logs serves the logs and attachments of test items and launches.
package logs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/logindex"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

const maxSearchResults = 100

// Index is the full text log index.
type Index interface {
	Search(ctx context.Context, projectID uint, phrase string, launchIDs []uint, size int) ([]logindex.Hit, int64, error)
	DeleteLogs(ctx context.Context, projectID uint, logIDs ...uint) error
}

type Manager struct {
	dbc   *db.DB
	store storage.DataStore
	index Index
}

// NewManager builds the log manager. index may be nil when log search is not configured.
func NewManager(dbc *db.DB, store storage.DataStore, index Index) *Manager {
	return &Manager{dbc: dbc, store: store, index: index}
}

func projectLogs(dbc *gorm.DB, projectID uint) *gorm.DB {
	return dbc.Model(&models.Log{}).Preload("Attachment").Where("logs.project_id = ?", projectID)
}

func findLog(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*models.Log, error) {
	q := projectLogs(dbc, project.ID)
	if id, err := strconv.ParseUint(idOrUUID, 10, 64); err == nil {
		q = q.Where("logs.id = ?", id)
	} else {
		q = q.Where("logs.uuid = ?", idOrUUID)
	}
	var entry models.Log
	if res := q.First(&entry); res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.LogNotFound, idOrUUID)
		}
		return nil, res.Error
	}
	return &entry, nil
}

func GetLog(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*apitype.LogResource, error) {
	entry, err := findLog(dbc, project, idOrUUID)
	if err != nil {
		return nil, err
	}
	res := api.LogResource(*entry)
	return &res, nil
}

func toResources(rows []models.Log) ([]apitype.LogResource, error) {
	result := make([]apitype.LogResource, 0, len(rows))
	for _, l := range rows {
		result = append(result, api.LogResource(l))
	}
	return result, nil
}

// ListLogs pages through logs of the project in time order. The item, launch and level
// query parameters narrow the list; level keeps logs of that level and above.
func ListLogs(dbc *gorm.DB, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.LogResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "logTime", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.LogResource]{}, err
	}
	q := projectLogs(dbc, project.ID)
	params := req.URL.Query()
	if v := params.Get("item"); v != "" {
		id, err := api.ParseID(v)
		if err != nil {
			return apitype.Page[apitype.LogResource]{}, err
		}
		q = q.Where("logs.item_id = ?", id)
	}
	if v := params.Get("launch"); v != "" {
		id, err := api.ParseID(v)
		if err != nil {
			return apitype.Page[apitype.LogResource]{}, err
		}
		q = q.Where("logs.launch_id = ?", id)
	}
	if v := params.Get("level"); v != "" {
		q = q.Where("logs.level >= ?", apitype.ParseLogLevel(v).Int())
	}
	return api.FilteredPage(q, opts, query.LogColumns, toResources)
}

// DeleteLog removes a log and its attachment. Only the launch owner or a project manager may
// delete logs.
func (m *Manager) DeleteLog(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) error {
	dbc := m.dbc.DB.WithContext(ctx)
	entry, err := findLog(dbc, project, strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return err
	}
	launchID, err := launchOf(dbc, entry)
	if err != nil {
		return err
	}
	launch, err := query.LaunchByID(dbc, launchID)
	if err != nil {
		return err
	}
	if launch == nil {
		return rperrors.New(rperrors.LaunchNotFound, launchID)
	}
	if launch.Status == string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.ForbiddenOperation, "Unable to delete log of launch in progress")
	}
	if !user.IsAdmin() && launch.UserID != user.ID && !project.Role.SameOrHigherThan(apitype.ProjectRoleProjectManager) {
		return rperrors.New(rperrors.AccessDenied, "You are not a launch owner.")
	}

	err = dbc.Transaction(func(tx *gorm.DB) error {
		if res := tx.Delete(&models.Log{}, entry.ID); res.Error != nil {
			return res.Error
		}
		if entry.AttachmentID != nil {
			return tx.Delete(&models.Attachment{}, *entry.AttachmentID).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	if entry.Attachment != nil && m.store != nil {
		if err := m.store.Delete(ctx, entry.Attachment.FileID); err != nil {
			log.WithError(err).WithField("file", entry.Attachment.FileID).Warn("could not delete attachment file")
		}
	}
	if m.index != nil {
		if err := m.index.DeleteLogs(ctx, project.ID, entry.ID); err != nil {
			log.WithError(err).WithField("log", entry.ID).Warn("could not remove log from index")
		}
	}
	return nil
}

func launchOf(dbc *gorm.DB, entry *models.Log) (uint, error) {
	if entry.LaunchID != nil {
		return *entry.LaunchID, nil
	}
	if entry.ItemID == nil {
		return 0, rperrors.New(rperrors.TestItemOrLaunchNotFound, entry.UUID)
	}
	item, err := query.TestItemByID(dbc, *entry.ItemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, rperrors.New(rperrors.TestItemNotFound, *entry.ItemID)
	}
	return item.LaunchID, nil
}

// Attachment is binary content loaded from the data store. The caller closes Content.
type Attachment struct {
	ContentType string
	Size        int64
	Content     io.ReadCloser
}

// LoadAttachment opens the stored content of an attachment of the project.
func (m *Manager) LoadAttachment(ctx context.Context, project *auth.ProjectDetails, fileID string) (*Attachment, error) {
	var attachment models.Attachment
	res := m.dbc.DB.WithContext(ctx).Where("project_id = ? AND file_id = ?", project.ID, fileID).First(&attachment)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.AttachmentNotFound, fileID)
		}
		return nil, res.Error
	}
	if m.store == nil {
		return nil, rperrors.New(rperrors.UnableToLoadBinaryData, fileID)
	}
	content, err := m.store.Load(ctx, attachment.FileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, rperrors.New(rperrors.AttachmentNotFound, fileID)
		}
		log.WithError(err).WithField("file", fileID).Error("error loading attachment")
		return nil, rperrors.New(rperrors.UnableToLoadBinaryData, fileID)
	}
	return &Attachment{ContentType: attachment.ContentType, Size: attachment.FileSize, Content: content}, nil
}

// SearchLogs finds logs of the project by message phrase through the log index.
func (m *Manager) SearchLogs(ctx context.Context, project *auth.ProjectDetails, phrase string, launchIDs []uint) ([]apitype.LogResource, error) {
	if m.index == nil {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, "Log search is not configured.")
	}
	if len(phrase) < 3 {
		return nil, rperrors.New(rperrors.IncorrectFilterParameters, "Search phrase should be at least 3 symbols long")
	}
	hits, total, err := m.index.Search(ctx, project.ID, phrase, launchIDs, maxSearchResults)
	if err != nil {
		log.WithError(err).Error("error searching logs")
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, err.Error())
	}
	if len(hits) == 0 {
		return []apitype.LogResource{}, nil
	}
	log.WithFields(log.Fields{"phrase": phrase, "total": total}).Debug("log search")

	ids := make([]uint, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.LogID)
	}
	var rows []models.Log
	if res := projectLogs(m.dbc.DB.WithContext(ctx), project.ID).Where("logs.id IN ?", ids).Find(&rows); res.Error != nil {
		return nil, res.Error
	}
	byID := make(map[uint]models.Log, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	// Keep the relevance order of the index; hits deleted from the database are skipped.
	result := make([]apitype.LogResource, 0, len(rows))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			result = append(result, api.LogResource(r))
		}
	}
	return result, nil
}
