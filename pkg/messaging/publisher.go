package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/events"
)

// RequestType tells the consumer how to decode a reporting message.
type RequestType string

const (
	RequestStartLaunch  RequestType = "START_LAUNCH"
	RequestFinishLaunch RequestType = "FINISH_LAUNCH"
	RequestStartItem    RequestType = "START_TEST_ITEM"
	RequestFinishItem   RequestType = "FINISH_TEST_ITEM"
	RequestLog          RequestType = "LOG"
)

// queueFor is the queue, and routing key, of each request type.
var queueFor = map[RequestType]string{
	RequestStartLaunch:  QueueStartLaunch,
	RequestFinishLaunch: QueueFinishLaunch,
	RequestStartItem:    QueueStartItem,
	RequestFinishItem:   QueueFinishItem,
	RequestLog:          QueueLog,
}

// Message headers.
const (
	HeaderRequestType  = "requestType"
	HeaderUsername     = "username"
	HeaderProjectName  = "projectName"
	HeaderLaunchID     = "launchId"
	HeaderItemID       = "itemId"
	HeaderParentItemID = "parentItemId"
	HeaderBaseURL      = "baseUrl"
)

// Headers identify who reported a message and what it refers to.
type Headers struct {
	Username     string
	ProjectName  string
	LaunchID     string
	ItemID       string
	ParentItemID string
	BaseURL      string
}

func (h Headers) table(t RequestType) amqp.Table {
	table := amqp.Table{
		HeaderRequestType: string(t),
		HeaderUsername:    h.Username,
		HeaderProjectName: h.ProjectName,
	}
	for k, v := range map[string]string{
		HeaderLaunchID:     h.LaunchID,
		HeaderItemID:       h.ItemID,
		HeaderParentItemID: h.ParentItemID,
		HeaderBaseURL:      h.BaseURL,
	} {
		if v != "" {
			table[k] = v
		}
	}
	return table
}

func headersFromTable(table amqp.Table) Headers {
	str := func(k string) string {
		s, _ := table[k].(string)
		return s
	}
	return Headers{
		Username:     str(HeaderUsername),
		ProjectName:  str(HeaderProjectName),
		LaunchID:     str(HeaderLaunchID),
		ItemID:       str(HeaderItemID),
		ParentItemID: str(HeaderParentItemID),
		BaseURL:      str(HeaderBaseURL),
	}
}

// AsyncLog is a log request together with the content of its attachment.
type AsyncLog struct {
	Request     apitype.SaveLogRQ `json:"request"`
	FileName    string            `json:"fileName,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Content     []byte            `json:"content,omitempty"`
}

// Publisher sends persistent JSON messages on a single channel.
type Publisher struct {
	lock sync.Mutex
	ch   *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "opening publisher channel")
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, headers amqp.Table, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.WithMessage(err, "encoding message")
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
}

// PublishRequest routes a reporting request to the queue of its type.
func (p *Publisher) PublishRequest(ctx context.Context, t RequestType, headers Headers, body interface{}) error {
	queue, ok := queueFor[t]
	if !ok {
		return errors.Errorf("unknown request type %s", t)
	}
	log.WithFields(log.Fields{"type": t, "project": headers.ProjectName}).Debug("publishing reporting request")
	return p.Publish(ctx, ReportingExchange, queue, headers.table(t), body)
}

func (p *Publisher) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.ch.Close()
}

// ActivityPublisher forwards recorded activities to the activity exchange.
type ActivityPublisher struct {
	publisher *Publisher
}

func NewActivityPublisher(p *Publisher) *ActivityPublisher {
	return &ActivityPublisher{publisher: p}
}

// Subscribe registers the publisher for activity events.
func (a *ActivityPublisher) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.ActivityCreated, a.Handle)
}

func (a *ActivityPublisher) Handle(ctx context.Context, e events.Event) error {
	if e.Activity == nil {
		return nil
	}
	headers := amqp.Table{
		"projectId": strconv.FormatUint(uint64(e.ProjectID), 10),
		"action":    e.Activity.Action,
	}
	return a.publisher.Publish(ctx, ActivityExchange, QueueActivity, headers, e.Activity)
}
