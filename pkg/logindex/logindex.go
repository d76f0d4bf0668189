// Package logindex keeps a searchable copy of log messages in Elasticsearch, one index per
// project.
package logindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	es7 "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Document is the indexed form of a log.
type Document struct {
	LogID    uint      `json:"log_id"`
	LaunchID uint      `json:"launch_id"`
	ItemID   uint      `json:"item_id,omitempty"`
	Message  string    `json:"message"`
	Level    int       `json:"log_level"`
	LogTime  time.Time `json:"log_time"`
}

// Hit is a search match.
type Hit struct {
	LogID    uint
	LaunchID uint
	ItemID   uint
	Message  string
	Score    float64
}

type Index struct {
	client *es7.Client
}

func New(addresses []string, username, password string) (*Index, error) {
	client, err := es7.NewClient(es7.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "creating elasticsearch client")
	}
	return &Index{client: client}, nil
}

func IndexName(projectID uint) string {
	return fmt.Sprintf("logs-%d", projectID)
}

// IndexLogs stores the documents with a single bulk request.
func (i *Index) IndexLogs(ctx context.Context, projectID uint, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	for _, d := range docs {
		meta := map[string]map[string]string{"index": {"_id": fmt.Sprint(d.LogID)}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}

	res, err := i.client.Bulk(&b,
		i.client.Bulk.WithContext(ctx),
		i.client.Bulk.WithIndex(IndexName(projectID)),
	)
	body, err := readResponse(res, err)
	if err != nil {
		return errors.WithMessage(err, "bulk indexing logs")
	}
	if gjson.Get(body, "errors").Bool() {
		log.WithField("project", projectID).Warnf("some log documents were not indexed: %s",
			gjson.Get(body, "items.#.index.error.reason").String())
	}
	return nil
}

// DeleteByLaunches removes the documents of the launches.
func (i *Index) DeleteByLaunches(ctx context.Context, projectID uint, launchIDs ...uint) error {
	if len(launchIDs) == 0 {
		return nil
	}
	q, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{"launch_id": launchIDs},
		},
	})
	if err != nil {
		return err
	}
	res, err := i.client.DeleteByQuery([]string{IndexName(projectID)}, bytes.NewReader(q),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithIgnoreUnavailable(true),
	)
	_, err = readResponse(res, err)
	return errors.WithMessage(err, "deleting logs by launch")
}

// DeleteLogs removes single documents, ignoring those already gone.
func (i *Index) DeleteLogs(ctx context.Context, projectID uint, logIDs ...uint) error {
	if len(logIDs) == 0 {
		return nil
	}
	q, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{"log_id": logIDs},
		},
	})
	if err != nil {
		return err
	}
	res, err := i.client.DeleteByQuery([]string{IndexName(projectID)}, bytes.NewReader(q),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithIgnoreUnavailable(true),
	)
	_, err = readResponse(res, err)
	return errors.WithMessage(err, "deleting logs")
}

// DeleteProject drops the project's index.
func (i *Index) DeleteProject(ctx context.Context, projectID uint) error {
	res, err := i.client.Indices.Delete([]string{IndexName(projectID)},
		i.client.Indices.Delete.WithContext(ctx),
		i.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	_, err = readResponse(res, err)
	return errors.WithMessage(err, "deleting log index")
}

// Search finds logs whose message matches the phrase, optionally within launches.
func (i *Index) Search(ctx context.Context, projectID uint, phrase string, launchIDs []uint, size int) ([]Hit, int64, error) {
	must := []interface{}{
		map[string]interface{}{"match_phrase": map[string]interface{}{"message": phrase}},
	}
	if len(launchIDs) > 0 {
		must = append(must, map[string]interface{}{"terms": map[string]interface{}{"launch_id": launchIDs}})
	}
	q, err := json.Marshal(map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"sort":  []interface{}{"_score", map[string]string{"log_time": "desc"}},
	})
	if err != nil {
		return nil, 0, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(IndexName(projectID)),
		i.client.Search.WithBody(bytes.NewReader(q)),
		i.client.Search.WithTrackTotalHits(true),
		i.client.Search.WithIgnoreUnavailable(true),
	)
	j, err := readResponse(res, err)
	if err != nil {
		return nil, 0, errors.WithMessage(err, "searching logs")
	}

	total := gjson.Get(j, "hits.total.value").Int()
	log.Debugf("log search for %q: %d hits; took: %dms", phrase, total, gjson.Get(j, "took").Int())

	var hits []Hit
	for _, h := range gjson.Get(j, "hits.hits").Array() {
		src := h.Get("_source")
		hits = append(hits, Hit{
			LogID:    uint(src.Get("log_id").Uint()),
			LaunchID: uint(src.Get("launch_id").Uint()),
			ItemID:   uint(src.Get("item_id").Uint()),
			Message:  src.Get("message").String(),
			Score:    h.Get("_score").Float(),
		})
	}
	return hits, total, nil
}

func readResponse(res *esapi.Response, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "error reading elasticsearch response")
	}
	if res.IsError() && res.StatusCode != 404 {
		return "", errors.Errorf("elasticsearch returned %s: %s", res.Status(), strings.TrimSpace(gjson.GetBytes(b, "error.reason").String()))
	}
	return string(b), nil
}
