package observability

import "context"

// Publisher is the event sink for lifecycle envelopes. The rabbitmq
// package's publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide event sink. Nil leaves publishing
// a no-op.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent fans an event envelope into the topic exchange. Publish
// failures count against the error metric but never fail the caller; the
// transport is a best-effort collaborator.
func PublishEvent(ctx context.Context, routingKey string, message interface{}) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
