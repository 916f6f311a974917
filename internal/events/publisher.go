// Package events mirrors campaign log entries onto a message exchange so
// the notification and audit collaborators can consume them without
// touching the database.
package events

import (
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// Sink receives every appended campaign log entry. Event delivery is
// best-effort: a broker outage never fails a publish tick.
type Sink interface {
	CampaignEvent(entry *model.CampaignLog)
}

// Nop drops events; used when no broker is configured.
type Nop struct{}

func (Nop) CampaignEvent(*model.CampaignLog) {}

// AMQPPublisher fans campaign events out to a durable topic exchange,
// routing key = event type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) CampaignEvent(entry *model.CampaignLog) {
	body, err := json.Marshal(entry)
	if err != nil {
		p.log.Error("marshal campaign event", zap.Error(err))
		return
	}
	err = p.ch.Publish(
		p.exchange,
		entry.Event, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		p.log.Warn("⚠️ failed to publish campaign event",
			zap.Int("campaign", entry.CampaignID),
			zap.String("event", entry.Event),
			zap.Error(err))
	}
}

func (p *AMQPPublisher) Close() {
	p.ch.Close()
	p.conn.Close()
}

var _ Sink = (*AMQPPublisher)(nil)
var _ Sink = Nop{}
