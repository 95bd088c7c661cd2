package events

// Topic constants for domain events emitted by the order service.
const (
	TopicOrderCreated = "order.created"
)

