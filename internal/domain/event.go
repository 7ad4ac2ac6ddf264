package domain

import "time"

// ChangeOp identifies the kind of mutation a change event describes.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is one entry of the remote store's change stream. Events carry
// the full new row state so subscribers never have to read back.
//
// Events for the same link are emitted in non-decreasing UpdatedAt order;
// no ordering is guaranteed across different links.
type ChangeEvent struct {
	Op      ChangeOp  `json:"op"`
	OwnerID string    `json:"ownerId"`
	Link    Link      `json:"link"`
	At      time.Time `json:"at"`
}
