package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventReactionGenerated EventType = "reaction_generated"
	EventRateEstimated     EventType = "rate_estimated"
	EventTreeGrown         EventType = "tree_grown"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Family    string    `json:"family"`
}

// ReactionEvent is emitted once per reaction handed back by a generation
// call.
type ReactionEvent struct {
	EventBase
	Equation   string `json:"equation"`
	Degeneracy int    `json:"degeneracy"`
	Forward    bool   `json:"forward"`
}

// EstimateEvent is emitted when kinetics are resolved for a template path.
type EstimateEvent struct {
	EventBase
	Template []string `json:"template"`
	Exact    bool     `json:"exact"`
}

// InductionEvent is emitted after a family's tree has been grown and fitted.
type InductionEvent struct {
	EventBase
	Nodes    int           `json:"nodes"`
	Training int           `json:"training"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnReaction  func(context.Context, *ReactionEvent)
	OnEstimate  func(context.Context, *EstimateEvent)
	OnInduction func(context.Context, *InductionEvent)
}
