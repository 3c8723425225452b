// Package notify publishes user-facing notifications to the notifications
// queue. Delivery is fire and forget: the reservation core logs publish
// failures and never lets them change the outcome of a booking or a
// cancellation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notification is the payload the notification service consumes.
type Notification struct {
	UserID  int64  `json:"user_id"`
	EventID int64  `json:"event_id"`
	Message string `json:"message"`
}

type Config struct {
	URL   string
	Queue string
}

// AMQPNotifier publishes notifications over a RabbitMQ channel.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewAMQPNotifier(cfg Config) (*AMQPNotifier, error) {
	const op = "notify.NewAMQPNotifier"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &AMQPNotifier{
		conn:    conn,
		channel: ch,
		queue:   cfg.Queue,
	}, nil
}

// Send publishes a notification for the user. The caller discards the
// result on the booking path; the error return exists for logging.
func (n *AMQPNotifier) Send(ctx context.Context, userID, eventID int64, message string) error {
	const op = "notify.AMQPNotifier.Send"

	body, err := json.Marshal(Notification{
		UserID:  userID,
		EventID: eventID,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}
