package amqp

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finpulse/internal/notify"
)

// MessageType tags change events on the exchange.
const MessageType = "finpulse.change"

func newPublishing(e notify.Event) (amqp091.Publishing, error) {
	body, err := e.ToJSON()
	if err != nil {
		return amqp091.Publishing{}, err
	}
	ts := e.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Transient,
		Type:         MessageType,
		AppId:        e.Source,
		Timestamp:    ts,
		Body:         body,
	}, nil
}

func eventFromDelivery(d amqp091.Delivery) (notify.Event, error) {
	if d.Type != "" && d.Type != MessageType {
		return notify.Event{}, fmt.Errorf("unexpected message type %q", d.Type)
	}
	e, err := notify.EventFromJSON(d.Body)
	if err != nil {
		return notify.Event{}, err
	}
	if e.Source == "" {
		e.Source = d.AppId
	}
	return e, nil
}
