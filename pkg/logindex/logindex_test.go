package logindex

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recorded struct {
	method string
	path   string
	body   string
}

func fakeElastic(t *testing.T, responses map[string]string) (*Index, *[]recorded) {
	var requests []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`))
			return
		}
		requests = append(requests, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		if resp, ok := responses[r.Method+" "+r.URL.Path]; ok {
			_, _ = w.Write([]byte(resp))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	idx, err := New([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return idx, &requests
}

func TestIndexLogs(t *testing.T) {
	idx, requests := fakeElastic(t, map[string]string{
		"POST /logs-4/_bulk": `{"errors":false,"items":[]}`,
	})

	err := idx.IndexLogs(context.Background(), 4, []Document{
		{LogID: 1, LaunchID: 2, ItemID: 3, Message: "NullPointerException", Level: 40000, LogTime: time.Unix(0, 0).UTC()},
		{LogID: 5, LaunchID: 2, Message: "launch log", Level: 20000, LogTime: time.Unix(0, 0).UTC()},
	})
	require.NoError(t, err)
	require.Len(t, *requests, 1)

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader((*requests)[0].body))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 4)
	assert.Equal(t, "1", gjson.Get(lines[0], "index._id").String())
	assert.Equal(t, "NullPointerException", gjson.Get(lines[1], "message").String())
	assert.False(t, gjson.Get(lines[3], "item_id").Exists())

	assert.NoError(t, idx.IndexLogs(context.Background(), 4, nil))
	assert.Len(t, *requests, 1)
}

func TestSearch(t *testing.T) {
	idx, requests := fakeElastic(t, map[string]string{
		"POST /logs-4/_search": `{"took":3,"hits":{"total":{"value":1},"hits":[
			{"_score":1.5,"_source":{"log_id":10,"launch_id":2,"item_id":3,"message":"connection refused"}}]}}`,
	})

	hits, total, err := idx.Search(context.Background(), 4, "connection refused", []uint{2}, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, hits, 1)
	assert.Equal(t, Hit{LogID: 10, LaunchID: 2, ItemID: 3, Message: "connection refused", Score: 1.5}, hits[0])

	query := (*requests)[0].body
	assert.Equal(t, "connection refused", gjson.Get(query, "query.bool.must.0.match_phrase.message").String())
	assert.Equal(t, int64(2), gjson.Get(query, "query.bool.must.1.terms.launch_id.0").Int())
}

func TestDeleteByLaunches(t *testing.T) {
	idx, requests := fakeElastic(t, nil)

	require.NoError(t, idx.DeleteByLaunches(context.Background(), 4, 7, 8))
	require.Len(t, *requests, 1)
	assert.Equal(t, "/logs-4/_delete_by_query", (*requests)[0].path)
	assert.Equal(t, "[7,8]", gjson.Get((*requests)[0].body, "query.terms.launch_id").Raw)

	require.NoError(t, idx.DeleteProject(context.Background(), 4))
	assert.Equal(t, "DELETE", (*requests)[1].method)
	assert.Equal(t, "/logs-4", (*requests)[1].path)
}
