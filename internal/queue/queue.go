// Package queue is the AMQP signal path between the API process and the
// dispatcher: send commands flow in, suppression events flow out.
package queue

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/brightpost/campaign-engine/internal/engine"
	"github.com/brightpost/campaign-engine/internal/model"
)

const (
	SendCommandQueue = "campaign_sends"
	SuppressionQueue = "suppression_events"
)

type SendCommand struct {
	CampaignID int `json:"campaign_id"`
}

type SuppressionEvent struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type Bus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

var _ engine.EventBus = (*Bus)(nil)

func Dial(url string, log zerolog.Logger) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to AMQP")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open AMQP channel")
	}
	for _, name := range []string{SendCommandQueue, SuppressionQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "declare queue %s", name)
		}
	}
	return &Bus{conn: conn, ch: ch, log: log}, nil
}

func (b *Bus) Close() {
	b.ch.Close()
	b.conn.Close()
}

// PublishSendCommand asks the dispatcher to start (or resume) a campaign
// send run.
func (b *Bus) PublishSendCommand(ctx context.Context, campaignID int) error {
	return b.publish(SendCommandQueue, SendCommand{CampaignID: campaignID})
}

// PublishSuppression emits the bounce-driven suppression signal for
// downstream consumers (list hygiene, provider sync).
func (b *Bus) PublishSuppression(ctx context.Context, email string, reason model.SuppressionReason) error {
	return b.publish(SuppressionQueue, SuppressionEvent{Email: email, Reason: string(reason)})
}

func (b *Bus) publish(queueName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.ch.Publish(
		"",        // default exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	), "publish to %s", queueName)
}

// ConsumeSendCommands delivers send commands to the handler until ctx is
// done. A failing command is requeued once; a second failure drops it, the
// engine's restart recovery picks the campaign up from the database.
func (b *Bus) ConsumeSendCommands(ctx context.Context, handler func(ctx context.Context, campaignID int) error) error {
	msgs, err := b.ch.Consume(SendCommandQueue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "register send command consumer")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var cmd SendCommand
			if err := json.Unmarshal(d.Body, &cmd); err != nil {
				b.log.Warn().Err(err).Msg("invalid send command, dropping")
				d.Ack(false)
				continue
			}
			if err := handler(ctx, cmd.CampaignID); err != nil {
				b.log.Error().Err(err).Int("campaign_id", cmd.CampaignID).Msg("send command failed")
				if !d.Redelivered {
					d.Nack(false, true)
					continue
				}
			}
			d.Ack(false)
		}
	}
}
