package services

import "helpnet/models"

// EventPublisher pushes domain events to connected clients. The scope each
// event kind fans out to (everyone, one emergency's channel, one user) is
// fixed by the implementation's dispatch table, not chosen here.
type EventPublisher interface {
	Publish(event string, emergencyID string, payload interface{})
}

// Outbox accepts deferred side-effect jobs. Enqueue never blocks the
// request path; a full queue drops the job.
type Outbox interface {
	Enqueue(job models.OutboxJob)
}

// noopPublisher is used when no real-time layer is wired.
type noopPublisher struct{}

func (noopPublisher) Publish(string, string, interface{}) {}

// NoopPublisher returns an EventPublisher that discards everything.
func NoopPublisher() EventPublisher {
	return noopPublisher{}
}
