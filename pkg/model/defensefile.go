package model

import "time"

// EntryKind discriminates the three append kinds a defense file holds. Kept
// as a tagged sum type (§9 design note) rather than a free-form map: code
// downstream of a read switches on Kind and touches only the matching typed
// field.
type EntryKind string

const (
	EntryKindSnapshot     EntryKind = "snapshot"
	EntryKindDeliberation EntryKind = "deliberation"
	EntryKindTransition   EntryKind = "transition"
)

// Transition is one accepted state-machine move, per C7's "every accepted
// transition appends an entry" rule.
type Transition struct {
	From         Phase
	To           Phase
	Reason       string
	Actor        string
	Timestamp    time.Time
	ValidPerRules bool
}

// ProjectSnapshot is a point-in-time copy of a project's scored attributes,
// appended whenever the scoring engine updates a project.
type ProjectSnapshot struct {
	Project                Project
	CumulativeComplianceScore int
	Timestamp              time.Time
}

// Entry is one append in a project's defense file. Exactly one of Snapshot,
// Deliberation, Transition is populated, selected by Kind.
type Entry struct {
	Kind         EntryKind
	Seq          int64
	Snapshot     *ProjectSnapshot
	Deliberation *Deliberation
	Transition   *Transition
	Hash         string // filled in by the store on append/read, not by the caller
	PrevHash     string
}
