// Package events publishes domain events to downstream consumers. Publishing
// is best effort; a failed publish is logged and never fails the operation
// that produced the event.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	WithdrawalCreated   = "withdrawal.created"
	WithdrawalApproved  = "withdrawal.approved"
	WithdrawalRejected  = "withdrawal.rejected"
	WithdrawalCompleted = "withdrawal.completed"
	WithdrawalFailed    = "withdrawal.failed"
	CopyTradeStarted    = "copytrading.started"
	CopyTradeStopped    = "copytrading.stopped"
	WaitlistSlotOffered = "waitlist.slot_offered"
	LedgerActionFailed  = "ledger.action_failed"
)

// Event is the envelope written to the bus.
type Event struct {
	Id        string            `json:"id"`
	Type      string            `json:"type"`
	UserId    string            `json:"user_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
