// Package workflow sequences user intents against the remote collection
// service. Every workflow follows the same state machine:
//
//	IDLE → VALIDATING → (REJECTED | PREPARING) → CALLING_REMOTE →
//	    (FAILED | RECONCILING) → (FAILED | SUCCEEDED)
//
// Validation failures never reach the remote service. Remote failures are
// logged with the workflow name and reported to the user with a generic
// message.
package workflow

import (
	"context"

	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/remote"
)

// State is a step of the workflow state machine.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateRejected
	StatePreparing
	StateCallingRemote
	StateFailed
	StateReconciling
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateValidating:
		return "VALIDATING"
	case StateRejected:
		return "REJECTED"
	case StatePreparing:
		return "PREPARING"
	case StateCallingRemote:
		return "CALLING_REMOTE"
	case StateFailed:
		return "FAILED"
	case StateReconciling:
		return "RECONCILING"
	case StateSucceeded:
		return "SUCCEEDED"
	default:
		return "UNKNOWN"
	}
}

// Name identifies a workflow.
type Name string

const (
	NameSearch        Name = "search"
	NameAddEmail      Name = "add-email"
	NameDeleteEmail   Name = "delete-email"
	NameGetPage       Name = "get-page"
	NameUpdateCounter Name = "update-counter"
	NameUpdatePager   Name = "update-pager"
	NameRegister      Name = "register"
	NameLogin         Name = "login"
	NameLogout        Name = "logout"
)

// Event is a state transition reported to the UI layer.
type Event struct {
	Workflow Name
	State    State
	Loading  bool
	// View is a snapshot of the collection view, set on SUCCEEDED.
	View *model.CollectionView
	// Items carries search results, set on SUCCEEDED for search and add.
	Items   []*model.Item
	Err     error
	Message string
	Fields  []string
}

// Emitter receives state transitions. Emit is called with the session lock
// held and must not call back into the Orchestrator.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}

// Collection is the remote collection service.
type Collection interface {
	Create(ctx context.Context, item *model.Item) (string, error)
	QueryByField(ctx context.Context, field, value string) ([]*model.Item, error)
	DeleteByKey(ctx context.Context, key string) (string, error)
	CountByField(ctx context.Context, field, value string) (int, error)
}

// Searcher looks up addresses.
type Searcher interface {
	Search(ctx context.Context, q remote.SearchQuery) ([]*model.Item, error)
}

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*remote.AuthResult, error)
	Login(ctx context.Context, email, password string) (*remote.AuthResult, error)
}

// Remote is everything the orchestrator needs from the remote service.
type Remote interface {
	Collection
	Searcher
	Authenticator
}

// Outcome records the path one workflow invocation took.
type Outcome struct {
	Workflow Name
	States   []State
	// NoOp is set when the request matched the current state and nothing ran.
	NoOp bool
	// Reload is set when a delete triggered a full page refetch.
	Reload bool
	// Pager is the page shown after a delete.
	Pager int
}

// Final returns the last state reached.
func (o *Outcome) Final() State {
	if o == nil || len(o.States) == 0 {
		return StateIdle
	}
	return o.States[len(o.States)-1]
}

// PendingAction is the in-flight optimistic change shown in the modal.
type PendingAction struct {
	Workflow Name
	ItemID   string
	Address  string
}

// SearchOptions are the options-panel values.
type SearchOptions struct {
	Engine model.Engine
	Limit  int
	Open   bool
}

// Workspace is the per-session UI state owned by an Orchestrator.
type Workspace struct {
	View        *model.CollectionView
	Results     []*model.Item
	Options     SearchOptions
	Pending     *PendingAction
	ModalOpen   bool
	FieldErrors []string
	Message     string
}
