package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event actions. Reset and migrate are bulk actions and carry no
// transaction id; consumers fall back to a reconcile pass for those.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionReset    = "reset"
	ActionMigrated = "migrated"
)

// LedgerEvent is the lightweight message published after a successful ledger
// mutation. It carries only identifiers; consumers fetch the full row from
// the store.
type LedgerEvent struct {
	Action    string    `json:"action"`
	TxID      string    `json:"tx_id,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(action, txID, owner string) *LedgerEvent {
	return &LedgerEvent{
		Action:    action,
		TxID:      txID,
		Owner:     owner,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
