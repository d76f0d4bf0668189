package analyzer

import (
	"context"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const analyzerUser = "analyzer"

// Service selects the items of a launch that need analysis, sends them to the analyzers and
// applies the issue types they suggest.
type Service struct {
	dbc      *db.DB
	client   *Client
	bus      *events.Bus
	recorder *activities.Recorder

	wg sync.WaitGroup
}

func NewService(dbc *db.DB, client *Client, bus *events.Bus, recorder *activities.Recorder) *Service {
	return &Service{dbc: dbc, client: client, bus: bus, recorder: recorder}
}

// Subscribe runs auto-analysis and indexing of every finished launch of projects that
// enabled it.
func (s *Service) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.LaunchFinished, s.onLaunchFinished)
}

// Wait blocks until background analyses are done.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) onLaunchFinished(ctx context.Context, e events.Event) error {
	if e.Launch == nil || !s.client.HasClients() {
		return nil
	}
	project, err := query.ProjectByID(s.dbc, e.ProjectID)
	if err != nil || project == nil {
		return err
	}
	launch := *e.Launch
	auto := project.Attribute(db.AttrAutoAnalyze) == "true"

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.WithoutCancel(ctx)
		cfg := projectConfig(project, "")
		if auto {
			if err := s.analyze(ctx, project.ID, &launch, cfg, []string{ItemsToInvestigate}); err != nil {
				log.WithError(err).WithField("launch", launch.ID).Error("auto-analysis failed")
			}
		}
		if err := s.index(ctx, project.ID, &launch, cfg); err != nil {
			log.WithError(err).WithField("launch", launch.ID).Error("launch indexing failed")
		}
	}()
	return nil
}

// AnalyzeLaunch runs analysis of a finished launch in the background.
func (s *Service) AnalyzeLaunch(ctx context.Context, project *auth.ProjectDetails, launch *models.Launch,
	rq apitype.AnalyzeLaunchRQ) error {
	if !s.client.HasClients() {
		return rperrors.New(rperrors.UnableInteractWithIntegr, "There are no analyzer services deployed.")
	}
	modes, err := itemModes(rq.AnalyzeItemsMode)
	if err != nil {
		return err
	}
	if rq.AnalyzerMode != "" && !validMode(rq.AnalyzerMode) {
		return rperrors.New(rperrors.IncorrectRequest, "Unknown analyzer mode '"+rq.AnalyzerMode+"'.")
	}
	p, err := query.ProjectByID(s.dbc, project.ID)
	if err != nil {
		return err
	}
	if p == nil {
		return rperrors.New(rperrors.ProjectNotFound, project.Name)
	}
	cfg := projectConfig(p, rq.AnalyzerMode)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.analyze(context.WithoutCancel(ctx), project.ID, launch, cfg, modes); err != nil {
			log.WithError(err).WithField("launch", launch.ID).Error("analysis failed")
		}
	}()
	return nil
}

func validMode(mode string) bool {
	switch strings.ToUpper(mode) {
	case ModeAll, ModeLaunchName, ModeCurrentLaunch:
		return true
	}
	return false
}

func itemModes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{ItemsToInvestigate}, nil
	}
	modes := make([]string, 0, len(requested))
	for _, m := range requested {
		m = strings.ToUpper(m)
		switch m {
		case ItemsToInvestigate, ItemsAutoAnalyzed, ItemsManuallyAnalyzed:
			modes = append(modes, m)
		default:
			return nil, rperrors.New(rperrors.IncorrectRequest, "Unknown analyze items mode '"+m+"'.")
		}
	}
	return modes, nil
}

func projectConfig(p *models.Project, mode string) Config {
	cfg := Config{
		AnalyzerMode:          ModeLaunchName,
		MinShouldMatch:        95,
		NumberOfLogLines:      defaultNumberOfLogLine,
		IsAutoAnalyzerEnabled: p.Attribute(db.AttrAutoAnalyze) == "true",
	}
	if v, err := strconv.Atoi(p.Attribute(db.AttrMinShouldMatch)); err == nil {
		cfg.MinShouldMatch = v
	}
	if mode != "" {
		cfg.AnalyzerMode = strings.ToUpper(mode)
	}
	return cfg
}

// modeCondition restricts issues joined as "i" with types joined as "it" to the requested
// item modes.
func modeCondition(modes []string) (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, m := range modes {
		switch m {
		case ItemsToInvestigate:
			parts = append(parts, "it.issue_group = ?")
			args = append(args, string(apitype.IssueGroupToInvestigate))
		case ItemsAutoAnalyzed:
			parts = append(parts, "(i.auto_analyzed AND it.issue_group <> ?)")
			args = append(args, string(apitype.IssueGroupToInvestigate))
		case ItemsManuallyAnalyzed:
			parts = append(parts, "(NOT i.auto_analyzed AND it.issue_group <> ?)")
			args = append(args, string(apitype.IssueGroupToInvestigate))
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// candidates returns the leaf items of a launch with an issue the analyzer may change.
func candidates(dbc *gorm.DB, launchID uint, condition string, args ...interface{}) ([]models.TestItem, error) {
	var items []models.TestItem
	q := dbc.Model(&models.TestItem{}).
		Joins("JOIN issues i ON i.item_id = test_items.id").
		Joins("JOIN issue_types it ON it.id = i.issue_type_id").
		Where("test_items.launch_id = ? AND NOT test_items.has_children AND test_items.retry_of IS NULL", launchID).
		Where("NOT i.ignore_analyzer")
	if condition != "" {
		q = q.Where(condition, args...)
	}
	res := q.Preload("Issue.IssueType").Order("test_items.id").Find(&items)
	return items, res.Error
}

// errorLogs returns the logs of level ERROR and above grouped by item.
func errorLogs(dbc *gorm.DB, itemIDs []uint) (map[uint][]IndexLog, error) {
	result := map[uint][]IndexLog{}
	if len(itemIDs) == 0 {
		return result, nil
	}
	var logs []models.Log
	res := dbc.Where("item_id IN ? AND level >= ?", itemIDs, apitype.LogLevelError.Int()).
		Order("log_time").Find(&logs)
	if res.Error != nil {
		return nil, res.Error
	}
	for _, l := range logs {
		if l.ItemID == nil {
			continue
		}
		result[*l.ItemID] = append(result[*l.ItemID], IndexLog{LogID: l.ID, LogLevel: l.Level, Message: l.Message})
	}
	return result, nil
}

// indexLaunch builds the analyzer payload. Items without error logs carry nothing to compare
// and are left out.
func indexLaunch(projectID uint, launch *models.Launch, cfg Config, items []models.TestItem,
	logs map[uint][]IndexLog) IndexLaunch {
	rq := IndexLaunch{
		LaunchID:       launch.ID,
		LaunchName:     launch.Name,
		ProjectID:      projectID,
		AnalyzerConfig: cfg,
	}
	for _, it := range items {
		itemLogs := logs[it.ID]
		if len(itemLogs) == 0 {
			continue
		}
		ti := IndexTestItem{
			TestItemID:   it.ID,
			TestItemName: it.Name,
			UniqueID:     it.UniqueID,
			TestCaseHash: it.TestCaseHash,
			StartTime:    apitype.NewTime(it.StartTime),
			Logs:         itemLogs,
		}
		if it.Issue != nil {
			ti.IssueTypeLocator = it.Issue.IssueType.Locator
			ti.AutoAnalyzed = it.Issue.AutoAnalyzed
		}
		rq.TestItems = append(rq.TestItems, ti)
	}
	return rq
}

func (s *Service) prepare(ctx context.Context, projectID uint, launch *models.Launch, cfg Config,
	condition string, args ...interface{}) (IndexLaunch, error) {
	dbc := s.dbc.DB.WithContext(ctx)
	items, err := candidates(dbc, launch.ID, condition, args...)
	if err != nil {
		return IndexLaunch{}, err
	}
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	logs, err := errorLogs(dbc, ids)
	if err != nil {
		return IndexLaunch{}, err
	}
	return indexLaunch(projectID, launch, cfg, items, logs), nil
}

func (s *Service) analyze(ctx context.Context, projectID uint, launch *models.Launch, cfg Config, modes []string) error {
	condition, args := modeCondition(modes)
	rq, err := s.prepare(ctx, projectID, launch, cfg, condition, args...)
	if err != nil {
		return err
	}
	if len(rq.TestItems) == 0 {
		log.WithField("launch", launch.ID).Debug("nothing to analyze")
		return nil
	}
	results, err := s.client.Analyze(ctx, rq)
	if err != nil {
		return err
	}

	var changed []uint
	for analyzerName, analyzed := range results {
		ids, err := s.apply(ctx, projectID, analyzed)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"launch":   launch.ID,
			"analyzer": analyzerName,
			"items":    len(ids),
		}).Info("analysis applied")
		changed = append(changed, ids...)
	}
	if len(changed) > 0 {
		s.bus.Publish(ctx, events.Event{
			Type:      events.ItemsDefected,
			ProjectID: projectID,
			Login:     analyzerUser,
			Launch:    launch,
			ItemIDs:   changed,
		})
	}
	return nil
}

// apply changes the issues of analyzed items. The comment and tickets of the relevant item
// are copied along with its issue type.
func (s *Service) apply(ctx context.Context, projectID uint, analyzed []AnalyzedItem) ([]uint, error) {
	var changed []uint
	for _, a := range analyzed {
		var item models.TestItem
		err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Preload("Issue.IssueType").Where("id = ?", a.ItemID).Limit(1).Find(&item)
			if res.Error != nil || res.RowsAffected == 0 || item.Issue == nil {
				return res.Error
			}
			to, err := reporting.IssueTypeByLocator(tx, projectID, a.IssueType)
			if err != nil || to == nil {
				return err
			}
			from := item.Issue.IssueType
			updates := map[string]interface{}{"issue_type_id": to.ID, "auto_analyzed": true}
			if a.RelevantItemID != 0 {
				var relevant models.Issue
				res := tx.Where("item_id = ?", a.RelevantItemID).Limit(1).Find(&relevant)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected > 0 {
					updates["comment"] = relevant.Comment
					if err := tx.Exec(`INSERT INTO issue_tickets (issue_id, ticket_id)
						SELECT ?, ticket_id FROM issue_tickets WHERE issue_id = ? ON CONFLICT DO NOTHING`,
						item.ID, a.RelevantItemID).Error; err != nil {
						return err
					}
				}
			}
			if err := tx.Model(&models.Issue{}).Where("item_id = ?", item.ID).Updates(updates).Error; err != nil {
				return err
			}
			if from.ID == to.ID {
				return nil
			}
			if err := reporting.MoveIssueStatistics(tx, item, &from, to); err != nil {
				return err
			}
			changed = append(changed, item.ID)
			return nil
		})
		if err != nil {
			return changed, err
		}
		if len(changed) > 0 && changed[len(changed)-1] == item.ID {
			s.recorder.RecordQuietly(ctx, projectID, analyzerUser, models.ActionAnalyzeItem, activities.ObjectItem,
				item.ID, item.Name, map[string]interface{}{"issueType": a.IssueType, "relevantItemId": a.RelevantItemID})
		}
	}
	return changed, nil
}

// index sends analyzed items of a launch to the analyzers keeping an index.
func (s *Service) index(ctx context.Context, projectID uint, launch *models.Launch, cfg Config) error {
	rq, err := s.prepare(ctx, projectID, launch, cfg, "it.issue_group <> ?", string(apitype.IssueGroupToInvestigate))
	if err != nil {
		return err
	}
	if len(rq.TestItems) == 0 {
		return nil
	}
	indexed, err := s.client.Index(ctx, []IndexLaunch{rq})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"launch": launch.ID, "logs": indexed}).Debug("launch indexed")
	return nil
}

// SearchLogs finds items of previous launches with logs similar to the error logs of an item.
func (s *Service) SearchLogs(ctx context.Context, project *auth.ProjectDetails, itemID uint) ([]SearchRS, error) {
	dbc := s.dbc.DB.WithContext(ctx)
	var item models.TestItem
	res := dbc.Where("id = ?", itemID).Limit(1).Find(&item)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, rperrors.New(rperrors.TestItemNotFound, strconv.FormatUint(uint64(itemID), 10))
	}
	launch, err := query.LaunchByID(dbc, item.LaunchID)
	if err != nil {
		return nil, err
	}
	if launch == nil || launch.ProjectID != project.ID {
		return nil, rperrors.New(rperrors.TestItemNotFound, strconv.FormatUint(uint64(itemID), 10))
	}
	logs, err := errorLogs(dbc, []uint{item.ID})
	if err != nil {
		return nil, err
	}
	rq := SearchRQ{
		ProjectID:  project.ID,
		LaunchID:   launch.ID,
		LaunchName: launch.Name,
		ItemID:     item.ID,
		LogLines:   defaultNumberOfLogLine,
	}
	for _, l := range logs[item.ID] {
		rq.LogMessages = append(rq.LogMessages, l.Message)
	}
	if len(rq.LogMessages) == 0 {
		return []SearchRS{}, nil
	}
	return s.client.Search(ctx, rq)
}
