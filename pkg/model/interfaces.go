package model

import (
	"context"
	"time"
)

// Provider is the LLM Provider interface consumed by C4 (pkg/agentrun).
// The core does not care which model is behind it; implementations must
// honor the timeout and cancellation contract carried by ctx. Concrete
// providers are an external collaborator per §1 — this repo ships only a
// deterministic test double (pkg/llmprovider).
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Store is the persistence interface implemented for C9 by
// pkg/database.DefenseFileStore.
// Atomicity of Append is the implementation's responsibility.
type Store interface {
	Append(ctx context.Context, projectID string, entry Entry, prevHash string) (newHash string, err error)
	Read(ctx context.Context, projectID string) ([]Entry, error)
}

// DocumentStore is the document-access interface. No package in this
// repository calls it: pkg/contextasm receives documents through its Bundle
// and pkg/lock through lock.Context.
type DocumentStore interface {
	List(ctx context.Context, projectID string, filter DocumentFilter) ([]Document, error)
	GetContent(ctx context.Context, docID string) ([]byte, error)
}

// EventStatus is the status field of a stream Event.
type EventStatus string

const (
	EventStatusStarted  EventStatus = "started"
	EventStatusProgress EventStatus = "progress"
	EventStatusComplete EventStatus = "complete"
	EventStatusError    EventStatus = "error"
	EventStatusPing     EventStatus = "ping"
	EventStatusConnected EventStatus = "connected"
)

// Event is one record on the event stream hub (C8), exposed to a consumer
// as a stream of records per §6.
type Event struct {
	ProjectID string
	AgentID   string
	Status    EventStatus
	Message   string
	Progress  int // 0..100
	Timestamp time.Time
	Data      map[string]any
	Final     bool
}

// Subscription is exposed by C8 (pkg/eventstream): a consumer obtains one
// via Subscribe and receives events as a stream of records.
type Subscription interface {
	Events() <-chan Event
	Close()
}
