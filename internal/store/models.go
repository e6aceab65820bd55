// Package store contains the persistence layer for decksmith.
package store

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the state of a deck-generation task.
// Transitions are strictly monotonic; COMPLETED and FAILED are terminal.
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusOutline   TaskStatus = "OUTLINE"
	StatusContent   TaskStatus = "CONTENT"
	StatusImages    TaskStatus = "IMAGES"
	StatusCompile   TaskStatus = "COMPILE"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusFailed    TaskStatus = "FAILED"
)

// statusRank orders statuses along the pipeline. FAILED shares the terminal
// rank with COMPLETED: neither can be left.
var statusRank = map[TaskStatus]int{
	StatusPending:   0,
	StatusOutline:   1,
	StatusContent:   2,
	StatusImages:    3,
	StatusCompile:   4,
	StatusCompleted: 5,
	StatusFailed:    5,
}

// Terminal reports whether no further transition may leave s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank returns the pipeline position of s, for monotonicity checks.
func (s TaskStatus) Rank() int {
	return statusRank[s]
}

// Progress returns the coarse client-visible progress marker for s.
func (s TaskStatus) Progress() int {
	switch s {
	case StatusPending:
		return 0
	case StatusOutline:
		return 10
	case StatusContent:
		return 30
	case StatusImages:
		return 55
	case StatusCompile:
		return 85
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// Bounds on submissions.
const (
	MinPageCount = 3
	MaxPageCount = 20
	MaxTopicLen  = 500
)

// TaskError is the structured failure recorded on a terminally failed task.
// Kind is stable and client-visible; Message is short and human-readable.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Task is one end-to-end request to turn a topic into a compiled deck.
// The record is mutated exclusively by the orchestrator, always through
// conditional writes guarded by the previously observed status.
type Task struct {
	ID          uuid.UUID
	Status      TaskStatus
	Topic       string
	PageCount   int
	Style       string
	Progress    int
	OutlineRef  *string
	ContentRef  *string
	ArtifactRef *string
	Error       *TaskError

	// Per-stage attempt counters, explicit so retry ceilings are
	// inspectable without mocking time.
	OutlineAttempts int
	ContentAttempts int
	ImagesAttempts  int
	CompileAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attempts returns the attempt counter for the given stage.
func (t *Task) Attempts(stage TaskStatus) int {
	switch stage {
	case StatusOutline:
		return t.OutlineAttempts
	case StatusContent:
		return t.ContentAttempts
	case StatusImages:
		return t.ImagesAttempts
	case StatusCompile:
		return t.CompileAttempts
	default:
		return 0
	}
}

// SlideStub is one entry of a generated outline.
type SlideStub struct {
	Title string `json:"title"`
	Brief string `json:"brief"`
	Order int    `json:"order"`
}

// Outline is the ordered plan for a deck, produced once per task and
// immutable once produced.
type Outline struct {
	Topic  string      `json:"topic"`
	Style  string      `json:"style"`
	Slides []SlideStub `json:"slides"`
}

// SlideContent is the detailed content for a single slide.
type SlideContent struct {
	Order        int      `json:"order"`
	Title        string   `json:"title"`
	Bullets      []string `json:"bullets"`
	SpeakerNotes string   `json:"speaker_notes"`
	ImagePrompt  string   `json:"image_prompt"`
	ImageRef     string   `json:"image_ref,omitempty"`
}

// DeckContent bundles all slide content for a task, stored as one blob.
type DeckContent struct {
	Slides []SlideContent `json:"slides"`
}

// CacheEntry maps a normalized image-generation input to a stored blob.
// Entries are append-only; identical prompt+style always resolves to the
// same entry while unexpired.
type CacheEntry struct {
	CacheKey  string
	BlobRef   string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Artifact records the compiled deck for a completed task.
type Artifact struct {
	TaskID     uuid.UUID
	BlobRef    string
	SizeBytes  int64
	SlideCount int
	CreatedAt  time.Time
}
