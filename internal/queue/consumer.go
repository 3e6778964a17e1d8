// Package queue contains the background consumer that listens to the
// affiliate.password_reset queue and emails the affected affiliate.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/affiliate-dashboard/internal/mailer"
)

// errSkipped marks events that are valid but need no email.
var errSkipped = errors.New("notification skipped")

// errUndelivered marks a valid event whose email could not be sent.  The
// message goes back on the queue.
var errUndelivered = errors.New("email not delivered")

// requeueDelay spaces out redeliveries while the mail server is failing.
const requeueDelay = 5 * time.Second

// StartPasswordResetConsumer connects to RabbitMQ, declares the reset queue
// (durable) and sends one email per message.  It reconnects with capped
// exponential backoff and returns only when ctx is cancelled.  Messages that
// cannot be decoded are dropped; failed sends are requeued after
// requeueDelay.
func StartPasswordResetConsumer(ctx context.Context, url string, sender mailer.Sender) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn().Err(err).Dur("retry_in", backoff).Msg("reset-consumer: failed to dial broker")
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, sender)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn().Err(err).Msg("reset-consumer: consume loop ended; reconnecting")
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sender mailer.Sender) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(10, 0, false); err != nil {
        log.Warn().Err(err).Msg("reset-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(PasswordResetQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(PasswordResetQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            err := HandleMessage(ctx, sender, d.Body)
            ack, requeue := settle(err)
            switch {
            case ack:
                if err != nil {
                    log.Debug().Err(err).Msg("reset-consumer: nothing to send")
                }
                _ = d.Ack(false)
            case requeue:
                log.Warn().Err(err).Dur("retry_in", requeueDelay).Msg("reset-consumer: send failed; requeueing")
                sleepCtx(ctx, requeueDelay)
                _ = d.Nack(false, true)
            default:
                log.Error().Err(err).Msg("reset-consumer: dropping malformed message")
                _ = d.Nack(false, false)
            }
        }
    }
}

// settle maps a HandleMessage result to the broker acknowledgement.
func settle(err error) (ack, requeue bool) {
    switch {
    case err == nil, errors.Is(err, errSkipped):
        return true, false
    case errors.Is(err, errUndelivered):
        return false, true
    default:
        return false, false
    }
}

// HandleMessage decodes one event and delivers its email.
func HandleMessage(ctx context.Context, sender mailer.Sender, body []byte) error {
    var ev PasswordResetEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if strings.TrimSpace(ev.Email) == "" {
        return fmt.Errorf("%w: %s has no email", errSkipped, ev.CouponCode)
    }
    // a generated password is unusable unless delivered, so it ignores the opt-out
    if !ev.NotifyEmail && ev.TempPassword == "" {
        return fmt.Errorf("%w: %s opted out", errSkipped, ev.CouponCode)
    }
    subject, text := RenderResetEmail(ev)
    sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
    defer cancel()
    if err := sender.Send(sendCtx, ev.Email, subject, text); err != nil {
        return fmt.Errorf("%w: %w", errUndelivered, err)
    }
    log.Info().Str("coupon_code", ev.CouponCode).Str("event_id", ev.EventID).Msg("password reset email sent")
    return nil
}

// RenderResetEmail returns the subject and plain-text body for an event.
func RenderResetEmail(ev PasswordResetEvent) (string, string) {
    var b strings.Builder
    fmt.Fprintf(&b, "Hello,\n\nThe password for affiliate account %s was reset by an administrator on %s.\n\n",
        ev.CouponCode, ev.ResetAt)
    if ev.TempPassword != "" {
        fmt.Fprintf(&b, "Your temporary password is: %s\n\nPlease log in and change it right away.\n\n", ev.TempPassword)
    } else {
        b.WriteString("Your administrator will share the new password with you.\n\n")
    }
    if ev.SupportEmail != "" {
        fmt.Fprintf(&b, "If you did not expect this change, contact %s.\n", ev.SupportEmail)
    } else {
        b.WriteString("If you did not expect this change, contact your program administrator.\n")
    }
    return "Your affiliate password was reset", b.String()
}
