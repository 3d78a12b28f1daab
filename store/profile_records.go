package store

// The records in this file are owned by the resource CRUD layer and are
// consumed read-only by the chat engine to build per-request user context.

// CoreValue is a value the user has declared for themselves.
type CoreValue struct {
	Name        string
	Description string
	ID          int32
	OwnerID     int32
}

// FocusArea is a goal or growth area the user is actively working on.
type FocusArea struct {
	Name     string
	Progress float64 // [0,1]
	ID       int32
	OwnerID  int32
	Active   bool
}

// Mentor is a person (real or archetypal) the user has chosen for guidance.
type Mentor struct {
	Name      string
	Expertise string
	ID        int32
	OwnerID   int32
}

// InteractionOutcome is the user's own rating of how an interaction went.
type InteractionOutcome string

const (
	InteractionOutcomePositive InteractionOutcome = "positive"
	InteractionOutcomeNeutral  InteractionOutcome = "neutral"
	InteractionOutcomeNegative InteractionOutcome = "negative"
)

// Interaction is a logged real-world interaction summary.
type Interaction struct {
	Summary   string
	Outcome   InteractionOutcome
	CreatedTs int64
	ID        int32
	OwnerID   int32
}

type FindCoreValue struct {
	OwnerID int32
}

type FindFocusArea struct {
	OwnerID    int32
	ActiveOnly bool
}

type FindMentor struct {
	OwnerID int32
}

// FindInteraction bounds the recent-interaction window: rows created
// before Since are excluded and at most Limit rows are returned,
// newest first.
type FindInteraction struct {
	Since   int64
	Limit   int
	OwnerID int32
}
