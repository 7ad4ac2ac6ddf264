package domain

import "time"

// OperationKind is the kind of pending mutation held in a device outbox.
type OperationKind string

const (
	OpKindCreate OperationKind = "create"
	OpKindUpdate OperationKind = "update"
	OpKindDelete OperationKind = "delete"
)

// EntryState tracks an outbox entry through its lifecycle, from the
// capturing device's perspective.
type EntryState string

const (
	// EntryPending: written to cache + outbox, not yet sent.
	EntryPending EntryState = "pending"
	// EntrySent: delivered to the remote store, awaiting acknowledgment.
	EntrySent EntryState = "sent"
	// EntryConfirmed: remote id assigned; the entry is removed right after.
	EntryConfirmed EntryState = "confirmed"
	// EntryFailed: attempts exhausted; retained until dismissed or retried.
	EntryFailed EntryState = "failed"
	// EntryConflicted: the remote already has this canonical URL for this
	// owner; the local pending write is discarded in favor of the remote row.
	EntryConflicted EntryState = "conflicted"
)

// OutboxEntry is a pending local mutation not yet confirmed by the remote
// store. Entries are created on user action, removed on acknowledgment,
// retried with a fixed delay on transient failure, and surfaced as a
// permanent failure after a bounded number of attempts.
type OutboxEntry struct {
	LocalID  string        `json:"localId"`
	Op       OperationKind `json:"op"`
	State    EntryState    `json:"state"`
	Attempts int           `json:"attempts"`

	// Link is the optimistic row for create operations.
	Link *Link `json:"link,omitempty"`

	// TargetID and Patch describe update operations; delete uses TargetID only.
	TargetID string     `json:"targetId,omitempty"`
	Patch    *LinkPatch `json:"patch,omitempty"`

	// LastError holds the classified message of the most recent failure.
	LastError string `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
