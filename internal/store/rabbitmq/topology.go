package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// DeclareTopology declares the durable job queue and its dead-letter queue.
// Publisher and consumer both call it so either may start first.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	dlq := DeadLetterQueue(queue)

	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	)
	return err
}
