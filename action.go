package logconf

// Action is a unit of queued configuration work.
//
// Validate runs for every queued action before any side effect happens, and
// may fail.  Its result is passed to both apply phases.  ApplyPreCreate runs
// for the whole batch before ApplyPostCreate runs for any of it, so
// instances disposed or created in the first phase are settled before
// properties are applied.  Errors from the apply phases and from Rollback
// are reported, never returned to the caller.
type Action interface {
	Validate() (any, error)
	ApplyPreCreate(prepared any) error
	ApplyPostCreate(prepared any) error
	Rollback() error
}

// ActionFuncs builds an Action from functions.  Nil functions do nothing.
type ActionFuncs struct {
	ValidateFn   func() (any, error)
	PreCreateFn  func(prepared any) error
	PostCreateFn func(prepared any) error
	RollbackFn   func() error
}

func (a ActionFuncs) Validate() (any, error) {
	if a.ValidateFn == nil {
		return nil, nil //nolint:nilnil
	}

	return a.ValidateFn()
}

func (a ActionFuncs) ApplyPreCreate(prepared any) error {
	if a.PreCreateFn == nil {
		return nil
	}

	return a.PreCreateFn(prepared)
}

func (a ActionFuncs) ApplyPostCreate(prepared any) error {
	if a.PostCreateFn == nil {
		return nil
	}

	return a.PostCreateFn(prepared)
}

func (a ActionFuncs) Rollback() error {
	if a.RollbackFn == nil {
		return nil
	}

	return a.RollbackFn()
}

// ActionState tracks an action through a transaction.
type ActionState int

const (
	StatePending ActionState = iota
	StateValidated
	StateApplied
	StateCommitted
	StateRolledBack
)

var actionStateNames = [...]string{
	StatePending:    "pending",
	StateValidated:  "validated",
	StateApplied:    "applied",
	StateCommitted:  "committed",
	StateRolledBack: "rolled back",
}

func (s ActionState) String() string {
	if s < 0 || int(s) >= len(actionStateNames) {
		return "unknown"
	}

	return actionStateNames[s]
}

// queued is an action sitting in one of the coordinator's queues.
type queued struct {
	action   Action
	desc     string
	state    ActionState
	prepared any
}
