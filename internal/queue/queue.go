package queue

import (
    "context"
    "encoding/json"
    "time"

    "github.com/streadway/amqp"
)

const outcomeQueueName = "campaign_events"

// CampaignEvent is published once per executed campaign. Consumers are
// downstream bookkeeping (CRM sync, notifications); events are
// best-effort and never block a send.
type CampaignEvent struct {
    CampaignID  string    `json:"campaign_id"`
    Identity    string    `json:"identity"`
    Kind        string    `json:"kind"`
    Status      string    `json:"status"`
    SentCount   int       `json:"sent_count"`
    FailedCount int       `json:"failed_count"`
    OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
    PublishOutcome(ctx context.Context, ev CampaignEvent) error
    Close() error
}

// AMQPPublisher publishes outcome events to a durable RabbitMQ queue.
type AMQPPublisher struct {
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
    conn, err := amqp.Dial(url)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        conn.Close()
        return nil, err
    }
    _, err = ch.QueueDeclare(
        outcomeQueueName,
        true,  // durable
        false, // delete when unused
        false, // exclusive
        false, // no-wait
        nil,   // arguments
    )
    if err != nil {
        ch.Close()
        conn.Close()
        return nil, err
    }
    return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishOutcome(_ context.Context, ev CampaignEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    return p.ch.Publish(
        "",
        outcomeQueueName,
        false,
        false,
        amqp.Publishing{
            ContentType: "application/json",
            Body:        body,
        },
    )
}

func (p *AMQPPublisher) Close() error {
    if p.ch != nil {
        p.ch.Close()
    }
    if p.conn != nil {
        return p.conn.Close()
    }
    return nil
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(context.Context, CampaignEvent) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }

var (
    _ Publisher = (*AMQPPublisher)(nil)
    _ Publisher = NoopPublisher{}
)
