package events

// Type names a domain event. The same names are used for the durable
// events table and the in-process bus.
type Type string

const (
	AlertCreated        Type = "alert.created"
	AlertStatusChanged  Type = "alert.status_changed"
	ActivityCreated     Type = "activity.created"
	ActivityCompleted   Type = "activity.completed"
	ChurnSynthesized    Type = "activity.churn_synthesized"
	NegotiationResolved Type = "negotiation.resolved"
	CardMoved           Type = "card.moved"
	CardUpdated         Type = "card.updated"
	AlertFinalized      Type = "card.finalized"
	SideEffectFailed    Type = "side_effect.failed"
	NotificationSent    Type = "notification.sent"
	CalendarEventBooked Type = "calendar.booked"
)

// Entity kinds stored alongside each event row.
const (
	KindAlert    = "alert"
	KindActivity = "activity"
	KindCard     = "card"
)

// Payload is the free-form body of an event.
type Payload map[string]any

// Event is a committed domain fact.
type Event struct {
	Type       Type
	UnitID     string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}
