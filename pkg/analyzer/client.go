// Package analyzer talks to the external analyzer services over AMQP and applies their
// verdicts to test items.
package analyzer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// Routing keys understood by analyzers.
const (
	RouteAnalyze = "analyze"
	RouteIndex   = "index"
	RouteSearch  = "search"
	RouteDelete  = "delete"
	RouteClean   = "clean"

	replyQueue = "amq.rabbitmq.reply-to"
)

type exchange struct {
	name     string
	priority int
	version  *version.Version
	index    bool
}

// transport performs request-reply and one-way messaging with an analyzer exchange.
type transport interface {
	call(ctx context.Context, exchange, route string, body, out interface{}) error
	send(ctx context.Context, exchange, route string, body interface{}) error
	available(exchange string) bool
}

// Client sends requests to the configured analyzers in priority order.
type Client struct {
	exchanges []exchange
	transport transport
}

// NewClient keeps the analyzers whose version satisfies their configured minimum, ordered by
// priority.
func NewClient(conn *amqp.Connection, cfg v1.AnalyzerConfig) (*Client, error) {
	exchanges, err := selectExchanges(cfg.Exchanges)
	if err != nil {
		return nil, err
	}
	return &Client{exchanges: exchanges, transport: &amqpTransport{conn: conn, timeout: cfg.Timeout}}, nil
}

func selectExchanges(configured []v1.AnalyzerExchange) ([]exchange, error) {
	var result []exchange
	for _, e := range configured {
		ex := exchange{name: e.Name, priority: e.Priority, index: e.Index}
		if e.Version != "" {
			v, err := version.NewVersion(e.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "analyzer %s has invalid version", e.Name)
			}
			ex.version = v
		}
		if e.MinVersion != "" {
			constraint, err := version.NewConstraint(">= " + e.MinVersion)
			if err != nil {
				return nil, errors.Wrapf(err, "analyzer %s has invalid minimum version", e.Name)
			}
			if ex.version == nil || !constraint.Check(ex.version) {
				log.WithFields(log.Fields{"analyzer": e.Name, "version": e.Version, "minVersion": e.MinVersion}).
					Warn("analyzer version is too old, ignoring it")
				continue
			}
		}
		result = append(result, ex)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].priority < result[j].priority })
	return result, nil
}

func (c *Client) active() []exchange {
	if c == nil {
		return nil
	}
	var result []exchange
	for _, e := range c.exchanges {
		if c.transport.available(e.name) {
			result = append(result, e)
		}
	}
	return result
}

// HasClients reports whether any analyzer is deployed.
func (c *Client) HasClients() bool {
	return len(c.active()) > 0
}

// Info lists the deployed analyzers.
func (c *Client) Info() []Info {
	var result []Info
	for _, e := range c.active() {
		info := Info{Name: e.name, Priority: e.priority, Index: e.index}
		if e.version != nil {
			info.Version = e.version.String()
		}
		result = append(result, info)
	}
	return result
}

// Analyze sends the launch to every analyzer in turn. Items analyzed by one analyzer are not
// sent to the next. Results are keyed by analyzer name.
func (c *Client) Analyze(ctx context.Context, rq IndexLaunch) (map[string][]AnalyzedItem, error) {
	exchanges := c.active()
	if len(exchanges) == 0 {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, "There are no analyzer services deployed.")
	}
	result := map[string][]AnalyzedItem{}
	for _, e := range exchanges {
		if len(rq.TestItems) == 0 {
			break
		}
		var analyzed []AnalyzedItem
		if err := c.transport.call(ctx, e.name, RouteAnalyze, []IndexLaunch{rq}, &analyzed); err != nil {
			log.WithError(err).WithField("analyzer", e.name).Error("analyzer request failed")
			continue
		}
		if len(analyzed) > 0 {
			result[e.name] = analyzed
			rq.TestItems = removeAnalyzed(rq.TestItems, analyzed)
		}
	}
	return result, nil
}

func removeAnalyzed(items []IndexTestItem, analyzed []AnalyzedItem) []IndexTestItem {
	done := make(map[uint]bool, len(analyzed))
	for _, a := range analyzed {
		done[a.ItemID] = true
	}
	remaining := items[:0:0]
	for _, it := range items {
		if !done[it.TestItemID] {
			remaining = append(remaining, it)
		}
	}
	return remaining
}

func (c *Client) indexers() []exchange {
	var result []exchange
	for _, e := range c.active() {
		if e.index {
			result = append(result, e)
		}
	}
	return result
}

// Index stores launches in the index of every analyzer that keeps one and returns the
// number of indexed logs reported by the first of them.
func (c *Client) Index(ctx context.Context, launches []IndexLaunch) (int64, error) {
	var indexed int64
	for i, e := range c.indexers() {
		var reply json.RawMessage
		if err := c.transport.call(ctx, e.name, RouteIndex, launches, &reply); err != nil {
			return indexed, err
		}
		if i == 0 {
			indexed = gjson.GetBytes(reply, "took").Int()
			if !gjson.GetBytes(reply, "took").Exists() {
				indexed = gjson.ParseBytes(reply).Int()
			}
		}
	}
	return indexed, nil
}

// Search asks the first indexing analyzer for logs similar to the given messages.
func (c *Client) Search(ctx context.Context, rq SearchRQ) ([]SearchRS, error) {
	indexers := c.indexers()
	if len(indexers) == 0 {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, "There are no analyzer services with search logs support deployed.")
	}
	var result []SearchRS
	if err := c.transport.call(ctx, indexers[0].name, RouteSearch, rq, &result); err != nil {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, err.Error())
	}
	return result, nil
}

// DeleteIndex removes the whole index of a project.
func (c *Client) DeleteIndex(ctx context.Context, projectID uint) error {
	for _, e := range c.indexers() {
		if err := c.transport.send(ctx, e.name, RouteDelete, projectID); err != nil {
			return err
		}
	}
	return nil
}

// CleanIndex removes logs from the index of a project.
func (c *Client) CleanIndex(ctx context.Context, projectID uint, logIDs []uint) error {
	if len(logIDs) == 0 {
		return nil
	}
	for _, e := range c.indexers() {
		if err := c.transport.send(ctx, e.name, RouteClean, CleanIndexRQ{ProjectID: projectID, LogIDs: logIDs}); err != nil {
			return err
		}
	}
	return nil
}

// amqpTransport implements direct reply-to RPC. Each call uses its own channel, since a
// reply-to consumer is bound to the channel that published the request.
type amqpTransport struct {
	conn    *amqp.Connection
	timeout time.Duration

	lock    sync.Mutex
	checked map[string]time.Time
}

// availabilityTTL is how long a positive exchange check is trusted.
const availabilityTTL = time.Minute

func (t *amqpTransport) available(name string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if checked, ok := t.checked[name]; ok && time.Since(checked) < availabilityTTL {
		return true
	}
	ch, err := t.conn.Channel()
	if err != nil {
		return false
	}
	// a failed passive declare closes the channel
	if err := ch.ExchangeDeclarePassive(name, amqp.ExchangeDirect, false, false, false, false, nil); err != nil {
		return false
	}
	_ = ch.Close()
	if t.checked == nil {
		t.checked = map[string]time.Time{}
	}
	t.checked[name] = time.Now()
	return true
}

func (t *amqpTransport) send(ctx context.Context, exchange, route string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WithStack(err)
	}
	ch, err := t.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "could not open channel")
	}
	defer ch.Close()
	return errors.WithStack(ch.PublishWithContext(ctx, exchange, route, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	}))
}

func (t *amqpTransport) call(ctx context.Context, exchange, route string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WithStack(err)
	}
	ch, err := t.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "could not open channel")
	}
	defer ch.Close()

	replies, err := ch.Consume(replyQueue, "", true, true, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "could not consume replies")
	}
	correlationID := uuid.NewString()
	if err := ch.PublishWithContext(ctx, exchange, route, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       replyQueue,
		Body:          payload,
	}); err != nil {
		return errors.Wrap(err, "could not publish request")
	}

	timeout := t.timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "no reply from analyzer %s on %s", exchange, route)
		case d, ok := <-replies:
			if !ok {
				return errors.Errorf("reply channel of analyzer %s closed", exchange)
			}
			if d.CorrelationId != correlationID {
				continue
			}
			return decodeReply(d.Body, out)
		}
	}
}

func decodeReply(body []byte, out interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return errors.Errorf("analyzer replied with invalid JSON: %q", body)
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() && msg.Type == gjson.String {
		return errors.New(msg.String())
	}
	return errors.WithStack(json.Unmarshal(body, out))
}
