// Package eventstream implements the Event Stream Hub (C8): a
// transport-agnostic fan-out of per-project events to bounded
// per-subscriber channels, a keepalive ping, idle-subscriber GC, and
// optional cross-process fan-out over NATS so a project's agents can run
// on a different pod than the client's stream subscription.
//
// Grounded on the teacher's pkg/events/manager.go: the same two-tier
// locking shape (a coarse lock over the project→subscribers map, a
// per-project lock over that project's own subscriber set, snapshotting
// subscriber pointers before doing any potentially slow send) carries
// over directly — only the transport changes, from a *websocket.Conn
// registered per connection to a bounded chan model.Event per
// Subscription.
package eventstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/revisoria/poe-engine/pkg/model"
)

const natsSubjectPrefix = "poe.events."

// Config holds Hub tuning knobs. Zero values fall back to the spec
// defaults (§6): 15s keepalive, 60s idle GC, a 64-event subscriber buffer.
type Config struct {
	SubscriberBuffer   int
	KeepaliveInterval  time.Duration
	IdleGCInterval     time.Duration
	IdleGCThreshold    time.Duration
	NATSConn           *nats.Conn // nil disables cross-process fan-out
}

func (c Config) withDefaults() Config {
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 15 * time.Second
	}
	if c.IdleGCInterval <= 0 {
		c.IdleGCInterval = 60 * time.Second
	}
	if c.IdleGCThreshold <= 0 {
		c.IdleGCThreshold = 60 * time.Second
	}
	return c
}

// projectChannel is one project's subscriber set.
type projectChannel struct {
	mu              sync.RWMutex
	subscribers     map[string]*subscription
	becameZeroAt    time.Time // zero value means "currently has subscribers"
	lastDeliveredAt time.Time // last time any event (real or ping) was delivered
}

// Hub is one per process. Safe for concurrent use.
type Hub struct {
	cfg Config

	mu       sync.RWMutex // coarse: guards only the projects map itself
	projects map[string]*projectChannel

	processID string
	natsSub   *nats.Subscription

	startedMu sync.Mutex
	started   bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	droppedMu sync.Mutex
	dropped   int64
}

// NewHub builds a Hub. Call Start before Subscribe/Publish are useful;
// Subscribe and Publish work without Start but keepalive/GC won't run.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:       cfg.withDefaults(),
		projects:  make(map[string]*projectChannel),
		processID: uuid.New().String(),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the keepalive and idle-GC loops, and — if a NATS
// connection was configured — subscribes to the cross-process fan-out
// subject. Idempotent: a second call is a no-op, matching the teacher's
// WorkerPool.Start guard.
func (h *Hub) Start(ctx context.Context) error {
	h.startedMu.Lock()
	defer h.startedMu.Unlock()
	if h.started {
		slog.Warn("eventstream: Start called twice, ignoring")
		return nil
	}
	h.started = true

	if h.cfg.NATSConn != nil {
		sub, err := h.cfg.NATSConn.Subscribe(natsSubjectPrefix+">", h.onNATSMessage)
		if err != nil {
			h.started = false
			return err
		}
		h.natsSub = sub
	}

	h.wg.Add(2)
	go h.keepaliveLoop()
	go h.gcLoop()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	return nil
}

// Stop halts the background loops and unsubscribes from NATS. Safe to
// call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.natsSub != nil {
			_ = h.natsSub.Unsubscribe()
		}
	})
	h.wg.Wait()
}

// Subscribe registers a new subscriber for projectID and returns its
// Subscription. The caller must call Close when done.
func (h *Hub) Subscribe(projectID string) model.Subscription {
	pc := h.projectChannelFor(projectID)

	sub := &subscription{
		id:     uuid.New().String(),
		events: make(chan model.Event, h.cfg.SubscriberBuffer),
		hub:    h,
		project: projectID,
	}

	pc.mu.Lock()
	pc.subscribers[sub.id] = sub
	pc.becameZeroAt = time.Time{}
	pc.mu.Unlock()

	sub.events <- model.Event{
		ProjectID: projectID,
		Status:    model.EventStatusConnected,
		Timestamp: time.Now(),
	}

	return sub
}

// Publish fans event out to every local subscriber of event.ProjectID
// and, if configured, republishes it over NATS for other processes.
func (h *Hub) Publish(event model.Event) {
	h.deliverLocal(event)

	if h.cfg.NATSConn == nil {
		return
	}
	data, err := json.Marshal(wireEvent{Origin: h.processID, Event: event})
	if err != nil {
		slog.Error("eventstream: marshal event for NATS", "error", err)
		return
	}
	if err := h.cfg.NATSConn.Publish(natsSubjectPrefix+event.ProjectID, data); err != nil {
		slog.Error("eventstream: publish to NATS", "error", err)
	}
}

// DroppedCount returns the number of events dropped so far because a
// subscriber's buffer was full. Exposed for tests and metrics.
func (h *Hub) DroppedCount() int64 {
	h.droppedMu.Lock()
	defer h.droppedMu.Unlock()
	return h.dropped
}

type wireEvent struct {
	Origin string      `json:"origin"`
	Event  model.Event `json:"event"`
}

func (h *Hub) onNATSMessage(msg *nats.Msg) {
	var we wireEvent
	if err := json.Unmarshal(msg.Data, &we); err != nil {
		slog.Warn("eventstream: invalid NATS payload", "error", err)
		return
	}
	if we.Origin == h.processID {
		return // our own publish, already delivered locally
	}
	h.deliverLocal(we.Event)
}

func (h *Hub) deliverLocal(event model.Event) {
	h.mu.RLock()
	pc, ok := h.projects[event.ProjectID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	pc.mu.Lock()
	pc.lastDeliveredAt = time.Now()
	subs := make([]*subscription, 0, len(pc.subscribers))
	for _, s := range pc.subscribers {
		subs = append(subs, s)
	}
	pc.mu.Unlock()

	for _, s := range subs {
		select {
		case s.events <- event:
		default:
			h.droppedMu.Lock()
			h.dropped++
			h.droppedMu.Unlock()
			slog.Warn("eventstream: subscriber buffer full, dropping event",
				"project_id", event.ProjectID, "subscriber_id", s.id)
		}
	}
}

func (h *Hub) projectChannelFor(projectID string) *projectChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	pc, ok := h.projects[projectID]
	if !ok {
		pc = &projectChannel{subscribers: make(map[string]*subscription), lastDeliveredAt: time.Now()}
		h.projects[projectID] = pc
	}
	return pc
}

func (h *Hub) unsubscribe(projectID, subID string) {
	h.mu.RLock()
	pc, ok := h.projects[projectID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	pc.mu.Lock()
	delete(pc.subscribers, subID)
	if len(pc.subscribers) == 0 {
		pc.becameZeroAt = time.Now()
	}
	pc.mu.Unlock()
}

func (h *Hub) keepaliveLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

// pingAll pings only the project channels that have gone quiet for at
// least KeepaliveInterval since their last delivered event (real or
// ping) — per §4.8, a channel that just received a real event must not
// also get a spurious ping at the same tick. deliverLocal resets
// lastDeliveredAt on every delivery, so a publish always pushes a
// channel's next eligible ping back by a full interval.
func (h *Hub) pingAll() {
	now := time.Now()

	h.mu.RLock()
	idleIDs := make([]string, 0, len(h.projects))
	for id, pc := range h.projects {
		pc.mu.RLock()
		idle := now.Sub(pc.lastDeliveredAt) >= h.cfg.KeepaliveInterval
		pc.mu.RUnlock()
		if idle {
			idleIDs = append(idleIDs, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range idleIDs {
		h.deliverLocal(model.Event{ProjectID: id, Status: model.EventStatusPing, Timestamp: time.Now()})
	}
}

// gcLoop sweeps project channels that have had zero subscribers for
// longer than IdleGCThreshold, freeing the map entry. A project that
// regains a subscriber before the sweep resets becameZeroAt to the zero
// value, so it survives.
func (h *Hub) gcLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.IdleGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweepIdle()
		}
	}
}

func (h *Hub) sweepIdle() {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, pc := range h.projects {
		pc.mu.RLock()
		idle := len(pc.subscribers) == 0 && !pc.becameZeroAt.IsZero() && now.Sub(pc.becameZeroAt) > h.cfg.IdleGCThreshold
		pc.mu.RUnlock()
		if idle {
			delete(h.projects, id)
		}
	}
}

// subscription implements model.Subscription.
type subscription struct {
	id      string
	events  chan model.Event
	hub     *Hub
	project string
	once    sync.Once
}

func (s *subscription) Events() <-chan model.Event {
	return s.events
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.project, s.id)
		close(s.events)
	})
}
