package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "wallet.events.withdrawal.created", Subject(WithdrawalCreated))
	assert.Equal(t, "wallet.events.ledger.action_failed", Subject(LedgerActionFailed))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()

	r.Publish(ctx, Event{Type: CopyTradeStarted, UserId: "user1"})
	r.Publish(ctx, Event{Type: CopyTradeStopped, UserId: "user1"})

	assert.Equal(t, []string{CopyTradeStarted, CopyTradeStopped}, r.Types())

	got := r.Events()
	got[0].UserId = "mutated"
	assert.Equal(t, "user1", r.Events()[0].UserId, "Events must return a copy")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NotPanics(t, func() { p.Publish(context.Background(), Event{Type: WithdrawalFailed}) })
}
