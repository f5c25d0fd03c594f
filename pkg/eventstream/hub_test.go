package eventstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisoria/poe-engine/pkg/model"
)

func TestSubscribe_ReceivesConnectedThenPublishedEvents(t *testing.T) {
	h := NewHub(Config{})
	sub := h.Subscribe("proj-1")
	defer sub.Close()

	first := <-sub.Events()
	assert.Equal(t, model.EventStatusConnected, first.Status)

	h.Publish(model.Event{ProjectID: "proj-1", Status: model.EventStatusProgress, AgentID: "A1_SPONSOR"})

	second := <-sub.Events()
	assert.Equal(t, model.EventStatusProgress, second.Status)
	assert.Equal(t, "A1_SPONSOR", second.AgentID)
}

func TestPublish_DoesNotCrossProjectBoundaries(t *testing.T) {
	h := NewHub(Config{})
	subA := h.Subscribe("proj-a")
	subB := h.Subscribe("proj-b")
	defer subA.Close()
	defer subB.Close()

	<-subA.Events() // connected
	<-subB.Events() // connected

	h.Publish(model.Event{ProjectID: "proj-a", Status: model.EventStatusComplete})

	select {
	case e := <-subA.Events():
		assert.Equal(t, model.EventStatusComplete, e.Status)
	case <-time.After(time.Second):
		t.Fatal("expected proj-a subscriber to receive the event")
	}

	select {
	case e := <-subB.Events():
		t.Fatalf("proj-b subscriber should not receive proj-a's event, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_DropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub(Config{SubscriberBuffer: 1})
	sub := h.Subscribe("proj-1")
	defer sub.Close()
	<-sub.Events() // connected, drains the only buffer slot

	h.Publish(model.Event{ProjectID: "proj-1", Status: model.EventStatusProgress, Progress: 1})
	// buffer now holds one event; this second publish must be dropped
	// instead of blocking.
	h.Publish(model.Event{ProjectID: "proj-1", Status: model.EventStatusProgress, Progress: 2})

	assert.Equal(t, int64(1), h.DroppedCount())

	e := <-sub.Events()
	assert.Equal(t, 1, e.Progress)
}

func TestClose_IsIdempotentAndStopsDelivery(t *testing.T) {
	h := NewHub(Config{})
	sub := h.Subscribe("proj-1")
	<-sub.Events()

	sub.Close()
	require.NotPanics(t, func() { sub.Close() })

	h.Publish(model.Event{ProjectID: "proj-1", Status: model.EventStatusComplete})
	// the subscriber map entry should be gone; publishing must not panic
	// or block even though nothing is listening.
}

func TestPingAll_PingsOnlyChannelsIdlePastKeepaliveInterval(t *testing.T) {
	h := NewHub(Config{KeepaliveInterval: time.Millisecond})
	sub := h.Subscribe("proj-1")
	defer sub.Close()
	<-sub.Events() // connected

	time.Sleep(5 * time.Millisecond)
	h.pingAll()

	select {
	case e := <-sub.Events():
		assert.Equal(t, model.EventStatusPing, e.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a ping after the channel went idle past KeepaliveInterval")
	}
}

// TestPingAll_ResetsTimerOnPublish confirms scenario 5: a channel that
// received a real event well inside KeepaliveInterval must not also
// receive a spurious ping at the next tick — delivery resets the idle
// clock.
func TestPingAll_ResetsTimerOnPublish(t *testing.T) {
	h := NewHub(Config{KeepaliveInterval: 20 * time.Millisecond})
	sub := h.Subscribe("proj-1")
	defer sub.Close()
	<-sub.Events() // connected

	time.Sleep(15 * time.Millisecond)
	h.Publish(model.Event{ProjectID: "proj-1", Status: model.EventStatusProgress, Progress: 1})
	<-sub.Events() // the real event, drained so only a stray ping would remain

	// Fire pingAll immediately after: 15ms+epsilon since subscribe, but
	// under 1ms since the publish just reset lastDeliveredAt, so this
	// project must be skipped.
	h.pingAll()

	select {
	case e := <-sub.Events():
		t.Fatalf("expected no ping immediately after a real delivery reset the idle timer, got %+v", e)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSweepIdle_RemovesZeroSubscriberProjectsPastThreshold(t *testing.T) {
	h := NewHub(Config{IdleGCThreshold: time.Millisecond})
	sub := h.Subscribe("proj-1")
	<-sub.Events()
	sub.Close()

	time.Sleep(5 * time.Millisecond)
	h.sweepIdle()

	h.mu.RLock()
	_, exists := h.projects["proj-1"]
	h.mu.RUnlock()
	assert.False(t, exists, "expected the idle project channel to be garbage collected")
}

func TestSweepIdle_SparesProjectsThatRegainedASubscriber(t *testing.T) {
	h := NewHub(Config{IdleGCThreshold: time.Millisecond})
	sub := h.Subscribe("proj-1")
	<-sub.Events()
	sub.Close()

	time.Sleep(5 * time.Millisecond)
	sub2 := h.Subscribe("proj-1") // resubscribe before the sweep runs
	defer sub2.Close()

	h.sweepIdle()

	h.mu.RLock()
	_, exists := h.projects["proj-1"]
	h.mu.RUnlock()
	assert.True(t, exists, "a project that regained a subscriber must survive the sweep")
}
