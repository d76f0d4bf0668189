package analyzer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type fakeTransport struct {
	down    map[string]bool
	replies map[string][]AnalyzedItem
	calls   []IndexLaunch
	sent    map[string]interface{}
}

func (f *fakeTransport) available(exchange string) bool {
	return !f.down[exchange]
}

func (f *fakeTransport) call(_ context.Context, exchange, route string, body, out interface{}) error {
	switch route {
	case RouteAnalyze:
		f.calls = append(f.calls, body.([]IndexLaunch)[0])
		b, _ := json.Marshal(f.replies[exchange])
		return json.Unmarshal(b, out)
	case RouteIndex:
		return json.Unmarshal([]byte(`{"took": 7}`), out)
	}
	return nil
}

func (f *fakeTransport) send(_ context.Context, exchange, route string, body interface{}) error {
	if f.sent == nil {
		f.sent = map[string]interface{}{}
	}
	f.sent[exchange+"/"+route] = body
	return nil
}

func TestSelectExchanges(t *testing.T) {
	exchanges, err := selectExchanges([]v1.AnalyzerExchange{
		{Name: "pattern", Priority: 5},
		{Name: "old", Priority: 0, Version: "5.0.0", MinVersion: "5.7.0"},
		{Name: "unversioned", Priority: 1, MinVersion: "5.7.0"},
		{Name: "main", Priority: 1, Version: "5.7.2", MinVersion: "5.7.0", Index: true},
	})
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "main", exchanges[0].name)
	assert.Equal(t, "pattern", exchanges[1].name)

	_, err = selectExchanges([]v1.AnalyzerExchange{{Name: "bad", Version: "not a version"}})
	assert.Error(t, err)
}

func TestAnalyzeSkipsAnalyzedItems(t *testing.T) {
	transport := &fakeTransport{
		replies: map[string][]AnalyzedItem{
			"main":    {{ItemID: 1, RelevantItemID: 10, IssueType: "pb001"}},
			"pattern": {{ItemID: 2, IssueType: "ab001"}},
		},
	}
	c := &Client{
		exchanges: []exchange{{name: "main", priority: 0, index: true}, {name: "pattern", priority: 1}},
		transport: transport,
	}
	rq := IndexLaunch{LaunchID: 5, TestItems: []IndexTestItem{{TestItemID: 1}, {TestItemID: 2}, {TestItemID: 3}}}

	results, err := c.Analyze(context.Background(), rq)
	require.NoError(t, err)
	assert.Len(t, results["main"], 1)
	assert.Len(t, results["pattern"], 1)

	require.Len(t, transport.calls, 2)
	assert.Len(t, transport.calls[0].TestItems, 3)
	assert.Len(t, transport.calls[1].TestItems, 2)
	assert.Equal(t, uint(2), transport.calls[1].TestItems[0].TestItemID)
	assert.Len(t, rq.TestItems, 3, "request of the caller must not change")
}

func TestClientWithoutAnalyzers(t *testing.T) {
	c := &Client{
		exchanges: []exchange{{name: "main"}},
		transport: &fakeTransport{down: map[string]bool{"main": true}},
	}
	assert.False(t, c.HasClients())
	_, err := c.Analyze(context.Background(), IndexLaunch{TestItems: []IndexTestItem{{TestItemID: 1}}})
	assert.True(t, rperrors.Is(err, rperrors.UnableInteractWithIntegr))

	var nilClient *Client
	assert.False(t, nilClient.HasClients())
}

func TestIndexAndClean(t *testing.T) {
	transport := &fakeTransport{}
	c := &Client{
		exchanges: []exchange{{name: "main", index: true}, {name: "pattern"}},
		transport: transport,
	}
	indexed, err := c.Index(context.Background(), []IndexLaunch{{LaunchID: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), indexed)

	require.NoError(t, c.CleanIndex(context.Background(), 3, []uint{1, 2}))
	require.NoError(t, c.DeleteIndex(context.Background(), 3))
	assert.Equal(t, CleanIndexRQ{ProjectID: 3, LogIDs: []uint{1, 2}}, transport.sent["main/clean"])
	assert.Equal(t, uint(3), transport.sent["main/delete"])
	assert.NotContains(t, transport.sent, "pattern/clean")

	info := c.Info()
	require.Len(t, info, 2)
	assert.True(t, info[0].Index)
}

func TestDecodeReply(t *testing.T) {
	var out []AnalyzedItem
	require.NoError(t, decodeReply([]byte(`[{"testItemId": 4, "relevantItemId": 2, "issueType": "pb001"}]`), &out))
	assert.Equal(t, []AnalyzedItem{{ItemID: 4, RelevantItemID: 2, IssueType: "pb001"}}, out)

	assert.EqualError(t, decodeReply([]byte(`{"error": "index not found"}`), &out), "index not found")
	assert.Error(t, decodeReply([]byte(`{broken`), &out))
	assert.NoError(t, decodeReply(nil, &out))
}

func TestItemModes(t *testing.T) {
	modes, err := itemModes(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ItemsToInvestigate}, modes)

	modes, err = itemModes([]string{"auto_analyzed", "MANUALLY_ANALYZED"})
	require.NoError(t, err)
	assert.Equal(t, []string{ItemsAutoAnalyzed, ItemsManuallyAnalyzed}, modes)

	_, err = itemModes([]string{"EVERYTHING"})
	assert.True(t, rperrors.Is(err, rperrors.IncorrectRequest))

	condition, args := modeCondition([]string{ItemsToInvestigate, ItemsAutoAnalyzed})
	assert.Equal(t, "(it.issue_group = ? OR (i.auto_analyzed AND it.issue_group <> ?))", condition)
	assert.Len(t, args, 2)

	assert.True(t, validMode("launch_name"))
	assert.False(t, validMode("PREVIOUS"))
}

func TestProjectConfig(t *testing.T) {
	p := &models.Project{Attributes: []models.ProjectAttribute{
		{Key: db.AttrAutoAnalyze, Value: "true"},
		{Key: db.AttrMinShouldMatch, Value: "80"},
	}}
	cfg := projectConfig(p, "all")
	assert.Equal(t, Config{AnalyzerMode: ModeAll, MinShouldMatch: 80, NumberOfLogLines: -1, IsAutoAnalyzerEnabled: true}, cfg)

	cfg = projectConfig(&models.Project{}, "")
	assert.Equal(t, ModeLaunchName, cfg.AnalyzerMode)
	assert.Equal(t, 95, cfg.MinShouldMatch)
	assert.False(t, cfg.IsAutoAnalyzerEnabled)
}

func TestIndexLaunch(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	launch := &models.Launch{Name: "nightly"}
	launch.ID = 7
	items := []models.TestItem{
		{UniqueID: "u1", Name: "login", StartTime: start, Issue: &models.Issue{
			AutoAnalyzed: true,
			IssueType:    models.IssueType{Locator: "pb001", IssueGroup: string(apitype.IssueGroupProductBug)},
		}},
		{UniqueID: "u2", Name: "logout", StartTime: start},
	}
	items[0].ID = 1
	items[1].ID = 2
	logs := map[uint][]IndexLog{1: {{LogID: 11, LogLevel: 40000, Message: "NPE"}}}

	rq := indexLaunch(3, launch, Config{AnalyzerMode: ModeAll}, items, logs)
	assert.Equal(t, uint(7), rq.LaunchID)
	assert.Equal(t, "nightly", rq.LaunchName)
	require.Len(t, rq.TestItems, 1)
	assert.Equal(t, "pb001", rq.TestItems[0].IssueTypeLocator)
	assert.True(t, rq.TestItems[0].AutoAnalyzed)
	assert.Equal(t, "NPE", rq.TestItems[0].Logs[0].Message)
}
