package orgsync

import "github.com/google/uuid"

type NotificationKind string

const (
	KindLoading  NotificationKind = "loading"
	KindSuccess  NotificationKind = "success"
	KindFailure  NotificationKind = "failure"
	KindRejected NotificationKind = "rejected"
)

// Notification is a user-facing message about a gesture.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	GestureID uuid.UUID        `json:"gestureId"`
}

// Notifier receives gesture notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}
