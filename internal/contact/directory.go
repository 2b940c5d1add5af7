package contact

import (
	"context"
	"time"
)

// Directory is the external system of record. The adapter owning this
// boundary is the only component that speaks to the remote service; every
// method blocks on I/O and must honor ctx.
type Directory interface {
	// FetchAll pages through the remote database until exhaustion. Records
	// that cannot be decoded are skipped, not fatal; the returned warnings
	// describe each skip.
	FetchAll(ctx context.Context) ([]Contact, []string, error)
	FetchOne(ctx context.Context, id string) (Contact, error)
	Create(ctx context.Context, c Contact) (Contact, error)
	// Update sends only the fields set on p, never a full overwrite.
	Update(ctx context.Context, id string, p Patch) (Contact, error)
	// Archive soft-deletes: the remote record is flagged, never removed.
	Archive(ctx context.Context, id, reason string, at time.Time) error
	Ping(ctx context.Context) error
}

// Snapshot is an immutable view of the contact set at a refresh point.
type Snapshot struct {
	Contacts    []Contact
	RefreshedAt time.Time
	Stale       bool
	Warnings    []string
}

// SnapshotSource is what the service reads through; the synchronization
// cache implements it.
type SnapshotSource interface {
	GetAll(ctx context.Context, force bool) (Snapshot, error)
	GetOne(ctx context.Context, id string) (Contact, error)
	Invalidate()
}

type InteractionKind string

const (
	InteractionMessage InteractionKind = "message"
	InteractionCall    InteractionKind = "call"
	InteractionMeeting InteractionKind = "meeting"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Interaction is one entry in the per-contact history: an outreach message,
// a logged call, or a scheduled meeting. Payload is opaque to the core.
type Interaction struct {
	ID         int64
	ContactID  string
	Kind       InteractionKind
	Direction  Direction
	Channel    string
	Subject    string
	Payload    string
	OccurredAt time.Time
	CreatedAt  time.Time
}

// InteractionLog is durable interaction history. A nil log disables
// recording without disabling the events themselves.
type InteractionLog interface {
	Append(ctx context.Context, it Interaction) (Interaction, error)
	ListByContact(ctx context.Context, contactID string) ([]Interaction, error)
}

type ChangeType string

const (
	ChangeCreated  ChangeType = "contact.created"
	ChangeUpdated  ChangeType = "contact.updated"
	ChangeArchived ChangeType = "contact.archived"
)

type ChangeEvent struct {
	EventID   string     `json:"eventId"`
	Type      ChangeType `json:"type"`
	ContactID string     `json:"contactId"`
	Timestamp string     `json:"timestamp"`
}

// Notifier receives change events for fan-out to live subscribers. Publish
// must not block.
type Notifier interface {
	Publish(ev ChangeEvent)
}
