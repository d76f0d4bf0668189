// Package messaging carries asynchronous reporting requests and activity events over
// RabbitMQ.
package messaging

import (
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ReportingExchange      = "reporting"
	ReportingRetryExchange = "reporting.retry"
	ActivityExchange       = "activity"
	EventsExchange         = "broadcast.events"

	QueueStartLaunch  = "reporting.launch.start"
	QueueFinishLaunch = "reporting.launch.finish"
	QueueStartItem    = "reporting.item.start"
	QueueFinishItem   = "reporting.item.finish"
	QueueLog          = "reporting.log"
	QueueRetry        = "reporting.retry"
	QueueParking      = "reporting.dlq"
	QueueActivity     = "activity"

	// routing key of the retry queue, messages keep their original routing key
	retryRoutingKey = "#"
)

// ReportingQueues are the queues consumed by the reporting consumer. Each one is bound to the
// reporting exchange with its own name as routing key.
var ReportingQueues = []string{QueueStartLaunch, QueueFinishLaunch, QueueStartItem, QueueFinishItem, QueueLog}

// DeclareTopology declares the exchanges and queues used for asynchronous reporting. Failed
// reporting messages are dead-lettered to the retry exchange, wait there for retryDelay and
// are dead-lettered back to the reporting exchange with their original routing key.
func DeclareTopology(ch *amqp.Channel, retryDelay time.Duration) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{ReportingExchange, amqp.ExchangeDirect},
		{ReportingRetryExchange, amqp.ExchangeTopic},
		{ActivityExchange, amqp.ExchangeDirect},
		{EventsExchange, amqp.ExchangeFanout},
	}
	for _, e := range exchanges {
		if err := ch.ExchangeDeclare(e.name, e.kind, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "declaring exchange %s", e.name)
		}
	}

	for _, q := range ReportingQueues {
		args := amqp.Table{"x-dead-letter-exchange": ReportingRetryExchange}
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return errors.Wrapf(err, "declaring queue %s", q)
		}
		if err := ch.QueueBind(q, q, ReportingExchange, false, nil); err != nil {
			return errors.Wrapf(err, "binding queue %s", q)
		}
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange": ReportingExchange,
		"x-message-ttl":          retryDelay.Milliseconds(),
	}
	if _, err := ch.QueueDeclare(QueueRetry, true, false, false, false, retryArgs); err != nil {
		return errors.Wrap(err, "declaring retry queue")
	}
	if err := ch.QueueBind(QueueRetry, retryRoutingKey, ReportingRetryExchange, false, nil); err != nil {
		return errors.Wrap(err, "binding retry queue")
	}
	if _, err := ch.QueueDeclare(QueueParking, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring parking queue")
	}

	if _, err := ch.QueueDeclare(QueueActivity, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring activity queue")
	}
	if err := ch.QueueBind(QueueActivity, QueueActivity, ActivityExchange, false, nil); err != nil {
		return errors.Wrap(err, "binding activity queue")
	}
	return nil
}

// deathCount is the number of times a message was rejected from queue, read from the
// x-death header the broker maintains.
func deathCount(headers amqp.Table, queue string) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, d := range deaths {
		death, ok := d.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := death["queue"].(string); q != queue {
			continue
		}
		switch c := death["count"].(type) {
		case int64:
			return c
		case int32:
			return int64(c)
		case int:
			return int64(c)
		}
	}
	return 0
}
