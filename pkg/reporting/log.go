package reporting

import (
	"context"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/logindex"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

// Attachment is the binary part of a log request.
type Attachment struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// SaveLog stores a log of an item or launch, together with its attachment.
func (s *Service) SaveLog(ctx context.Context, project *auth.ProjectDetails, rq apitype.SaveLogRQ,
	file *Attachment) (*apitype.EntryCreatedAsyncRS, error) {
	if err := validateSaveLog(rq); err != nil {
		return nil, err
	}

	entry := &models.Log{
		UUID:      rq.UUID,
		LogTime:   rq.LogTime.UTC(),
		Message:   rq.Message,
		Level:     apitype.ParseLogLevel(rq.Level).Int(),
		ProjectID: project.ID,
	}
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}

	var launchID uint
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rq.ItemUUID != "" {
			item, err := query.TestItemByUUID(tx, rq.ItemUUID)
			if err != nil {
				return err
			}
			if item == nil {
				return rperrors.New(rperrors.TestItemNotFound, rq.ItemUUID)
			}
			entry.ItemID = &item.ID
			launchID = item.LaunchID
		} else {
			launch, err := query.LaunchByUUID(tx, rq.LaunchUUID)
			if err != nil {
				return err
			}
			if launch == nil {
				return rperrors.New(rperrors.LaunchNotFound, rq.LaunchUUID)
			}
			if launch.ProjectID != project.ID {
				return rperrors.New(rperrors.AccessDenied, "Launch '"+launch.UUID+"' is not under the specified project.")
			}
			entry.LaunchID = &launch.ID
			launchID = launch.ID
		}

		if file != nil && file.Content != nil {
			attachment, err := s.saveAttachment(ctx, tx, project.ID, launchID, entry.ItemID, file)
			if err != nil {
				return err
			}
			entry.AttachmentID = &attachment.ID
		}
		return tx.Omit("Attachment").Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	if s.index != nil && entry.Message != "" {
		doc := logindex.Document{
			LogID:    entry.ID,
			LaunchID: launchID,
			Message:  entry.Message,
			Level:    entry.Level,
			LogTime:  entry.LogTime,
		}
		if entry.ItemID != nil {
			doc.ItemID = *entry.ItemID
		}
		if err := s.index.IndexLogs(ctx, project.ID, []logindex.Document{doc}); err != nil {
			log.WithError(err).WithField("log", entry.UUID).Warn("could not index log")
		}
	}
	return &apitype.EntryCreatedAsyncRS{ID: entry.UUID}, nil
}

// SaveLogBatch saves each log independently, matching attachments by file name. Failures are
// reported per element.
func (s *Service) SaveLogBatch(ctx context.Context, project *auth.ProjectDetails, rqs []apitype.SaveLogRQ,
	files map[string]*Attachment) apitype.BatchSaveOperatingRS {
	result := apitype.BatchSaveOperatingRS{Responses: make([]apitype.BatchElementCreatedRS, 0, len(rqs))}
	for _, rq := range rqs {
		var file *Attachment
		if rq.File != nil {
			file = files[rq.File.Name]
			if file == nil {
				result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{
					Message: rperrors.New(rperrors.BinaryDataCannotBeSaved, "No file part named '"+rq.File.Name+"'").Error(),
				})
				continue
			}
			if rq.File.ContentType != "" {
				file.ContentType = rq.File.ContentType
			}
		}
		rs, err := s.SaveLog(ctx, project, rq, file)
		if err != nil {
			result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{Message: err.Error()})
			continue
		}
		result.Responses = append(result.Responses, apitype.BatchElementCreatedRS{ID: rs.ID})
	}
	return result
}

func (s *Service) saveAttachment(ctx context.Context, tx *gorm.DB, projectID, launchID uint, itemID *uint, file *Attachment) (*models.Attachment, error) {
	if s.store == nil {
		return nil, rperrors.New(rperrors.BinaryDataCannotBeSaved, "no data store is configured")
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := storage.AttachmentPath(projectID, s.now(), uuid.NewString())
	size, err := s.store.Save(ctx, path, file.Content, contentType)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("error saving attachment")
		return nil, rperrors.New(rperrors.BinaryDataCannotBeSaved, err.Error())
	}
	attachment := &models.Attachment{
		FileID:      path,
		ContentType: contentType,
		FileSize:    size,
		ProjectID:   projectID,
		LaunchID:    &launchID,
		ItemID:      itemID,
	}
	if res := tx.Create(attachment); res.Error != nil {
		if err := s.store.Delete(ctx, path); err != nil {
			log.WithError(err).WithField("path", path).Warn("could not remove orphaned attachment")
		}
		return nil, res.Error
	}
	return attachment, nil
}
