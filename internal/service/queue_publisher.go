// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
    "context"
    "encoding/json"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"

    q "github.com/iliyamo/affiliate-dashboard/internal/queue"
)

// Publisher sends events to the broker at URL.  A connection is opened per
// publish: resets are rare and this keeps the HTTP server free of broker
// connection state.
type Publisher struct {
    URL string
}

// New returns a Publisher for url.
func New(url string) *Publisher { return &Publisher{URL: url} }

// PublishPasswordReset publishes a PasswordResetEvent to the
// "affiliate.password_reset" queue.  EventID and ResetAt are filled when
// empty.  Messages are marked as persistent.
func (p *Publisher) PublishPasswordReset(ctx context.Context, event q.PasswordResetEvent) error {
    if event.EventID == "" {
        event.EventID = uuid.NewString()
    }
    if event.ResetAt == "" {
        event.ResetAt = time.Now().UTC().Format(time.RFC3339)
    }
    body, err := json.Marshal(event)
    if err != nil {
        log.Error().Err(err).Msg("rabbitmq: marshal event failed")
        return err
    }

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        log.Error().Err(err).Msg("rabbitmq: dial failed")
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Error().Err(err).Msg("rabbitmq: channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.PasswordResetQueue, // name
        true,                 // durable
        false,                // autoDelete
        false,                // exclusive
        false,                // noWait
        nil,                  // args
    ); err != nil {
        log.Error().Err(err).Msg("rabbitmq: queue declare failed")
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    event.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",                   // default exchange
        q.PasswordResetQueue, // routing key = queue name
        false,                // mandatory
        false,                // immediate
        pub,
    ); err != nil {
        log.Error().Err(err).Msg("rabbitmq: publish failed")
        return err
    }
    log.Info().Str("event_id", event.EventID).Str("coupon_code", event.CouponCode).Msg("password reset event published")
    return nil
}
