package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// Reporter is the reporting service the consumer hands decoded requests to.
type Reporter interface {
	StartLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.StartLaunchRQ) (*apitype.StartLaunchRS, error)
	FinishLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, launchUUID string, rq apitype.FinishExecutionRQ, baseURL string) (*apitype.FinishLaunchRS, error)
	StartRootItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error)
	StartChildItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, parentUUID string, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error)
	FinishTestItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, itemUUID string, rq apitype.FinishTestItemRQ) (*apitype.OperationCompletionRS, error)
	SaveLog(ctx context.Context, project *auth.ProjectDetails, rq apitype.SaveLogRQ, file *reporting.Attachment) (*apitype.EntryCreatedAsyncRS, error)
}

// PrincipalResolver finds the user a message was reported by and their membership in the
// message's project.
type PrincipalResolver func(ctx context.Context, login, projectName string) (*auth.ReportPortalUser, *auth.ProjectDetails, error)

// DBPrincipalResolver resolves principals from the database.
func DBPrincipalResolver(dbc *db.DB) PrincipalResolver {
	return func(ctx context.Context, login, projectName string) (*auth.ReportPortalUser, *auth.ProjectDetails, error) {
		user, err := query.UserByLogin(dbc.DB.WithContext(ctx), login)
		if err != nil {
			return nil, nil, err
		}
		if user == nil {
			return nil, nil, rperrors.New(rperrors.UserNotFound, login)
		}
		rpUser := auth.NewReportPortalUser(user)
		project, err := auth.ProjectDetailsFor(dbc, rpUser, projectName)
		if err != nil {
			return nil, nil, err
		}
		return rpUser, project, nil
	}
}

type ConsumerOptions struct {
	// Consumers is the number of concurrent consumers per queue.
	Consumers int
	Prefetch  int
	// MaxRetries is how many times a failed message is retried before it is parked.
	MaxRetries int64
}

// ReportingConsumer processes the reporting queues.
type ReportingConsumer struct {
	conn     *amqp.Connection
	reporter Reporter
	resolve  PrincipalResolver
	opts     ConsumerOptions
}

func NewReportingConsumer(conn *amqp.Connection, reporter Reporter, resolve PrincipalResolver, opts ConsumerOptions) *ReportingConsumer {
	if opts.Consumers <= 0 {
		opts.Consumers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}
	return &ReportingConsumer{conn: conn, reporter: reporter, resolve: resolve, opts: opts}
}

// Run consumes until ctx is done or the connection is lost.
func (c *ReportingConsumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	errs := make(chan error, len(ReportingQueues)*c.opts.Consumers)
	wg := sync.WaitGroup{}
	for _, queue := range ReportingQueues {
		for i := 0; i < c.opts.Consumers; i++ {
			wg.Add(1)
			go func(queue string, n int) {
				defer wg.Done()
				if err := c.consume(ctx, queue, fmt.Sprintf("%s-%d", queue, n)); err != nil {
					errs <- err
					cancel()
				}
			}(queue, i)
		}
	}
	log.WithField("consumers", c.opts.Consumers).Info("reporting consumers started")

	var result error
	select {
	case <-ctx.Done():
	case amqpErr := <-closed:
		if amqpErr != nil {
			result = errors.Wrap(amqpErr, "amqp connection closed")
		}
		cancel()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if result == nil {
			result = err
		}
	}
	return result
}

func (c *ReportingConsumer) consume(ctx context.Context, queue, tag string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return errors.Wrapf(err, "opening channel for %s", queue)
	}
	defer ch.Close()
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return errors.Wrap(err, "setting qos")
	}
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "consuming %s", queue)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.process(ctx, ch, queue, d)
		}
	}
}

func (c *ReportingConsumer) process(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery) {
	logger := log.WithFields(log.Fields{
		"queue":       queue,
		"requestType": d.Headers[HeaderRequestType],
		"uuid":        gjson.GetBytes(d.Body, "uuid").String(),
	})

	err := c.Handle(ctx, d.Headers, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			logger.WithError(ackErr).Warn("could not ack message")
		}
		return
	}

	retries := deathCount(d.Headers, queue)
	if retries < c.opts.MaxRetries && retriable(err) {
		logger.WithError(err).WithField("retries", retries).Warn("reporting message failed, retrying")
		if nackErr := d.Nack(false, false); nackErr != nil {
			logger.WithError(nackErr).Warn("could not nack message")
		}
		return
	}

	logger.WithError(err).Error("reporting message failed, parking")
	parkErr := ch.PublishWithContext(ctx, "", QueueParking, false, false, amqp.Publishing{
		Headers:      d.Headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
	})
	if parkErr != nil {
		logger.WithError(parkErr).Error("could not park message")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// retriable reports whether a failure may succeed later. Validation errors never do, except
// missing parents which may still be in flight.
func retriable(err error) bool {
	rpErr, ok := rperrors.As(err)
	if !ok {
		return true
	}
	return rpErr.Type == rperrors.LaunchNotFound || rpErr.Type == rperrors.TestItemNotFound
}

// Handle decodes one reporting message by its request type and applies it.
func (c *ReportingConsumer) Handle(ctx context.Context, table amqp.Table, body []byte) error {
	requestType, _ := table[HeaderRequestType].(string)
	headers := headersFromTable(table)
	user, project, err := c.resolve(ctx, headers.Username, headers.ProjectName)
	if err != nil {
		return err
	}

	switch RequestType(requestType) {
	case RequestStartLaunch:
		var rq apitype.StartLaunchRQ
		if err := json.Unmarshal(body, &rq); err != nil {
			return rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		_, err = c.reporter.StartLaunch(ctx, user, project, rq)
	case RequestFinishLaunch:
		var rq apitype.FinishExecutionRQ
		if err := json.Unmarshal(body, &rq); err != nil {
			return rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		_, err = c.reporter.FinishLaunch(ctx, user, project, headers.LaunchID, rq, headers.BaseURL)
	case RequestStartItem:
		var rq apitype.StartTestItemRQ
		if err := json.Unmarshal(body, &rq); err != nil {
			return rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		if headers.ParentItemID != "" {
			_, err = c.reporter.StartChildItem(ctx, user, project, headers.ParentItemID, rq)
		} else {
			_, err = c.reporter.StartRootItem(ctx, user, project, rq)
		}
	case RequestFinishItem:
		var rq apitype.FinishTestItemRQ
		if err := json.Unmarshal(body, &rq); err != nil {
			return rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		_, err = c.reporter.FinishTestItem(ctx, user, project, headers.ItemID, rq)
	case RequestLog:
		var msg AsyncLog
		if err := json.Unmarshal(body, &msg); err != nil {
			return rperrors.New(rperrors.IncorrectRequest, err.Error())
		}
		var file *reporting.Attachment
		if len(msg.Content) > 0 {
			file = &reporting.Attachment{Name: msg.FileName, ContentType: msg.ContentType, Content: bytes.NewReader(msg.Content)}
		}
		_, err = c.reporter.SaveLog(ctx, project, msg.Request, file)
	default:
		return rperrors.New(rperrors.IncorrectRequest, "unknown request type '"+requestType+"'")
	}
	return err
}
