// Package model defines the saved-email item and the client-side view of a
// user's collection.
package model

import (
	"fmt"
	"slices"
	"time"
)

// Kind distinguishes generated placeholder items from real search results.
type Kind int

const (
	KindReal Kind = iota
	KindFake
)

var kindNames = [...]string{KindReal: "real", KindFake: "fake"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a kind name.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown kind %q", b)
	}
	*k = v
	return nil
}

// Action is the transient client-side marker on an item. It drives optimistic
// state and is never sent to the remote service.
type Action int

const (
	ActionNone Action = iota
	ActionCreated
	ActionAdded
	ActionDeleted
)

var actionNames = [...]string{
	ActionNone:    "none",
	ActionCreated: "created",
	ActionAdded:   "added",
	ActionDeleted: "deleted",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction resolves an action name.
func ParseAction(s string) (Action, bool) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return 0, false
}

// Engine is the search engine an item was found through.
type Engine int

const (
	EngineGoogle Engine = iota
	EngineBing
	EngineDuckDuckGo
	EngineYahoo
)

var engineNames = [...]string{
	EngineGoogle:     "google",
	EngineBing:       "bing",
	EngineDuckDuckGo: "duckduckgo",
	EngineYahoo:      "yahoo",
}

func (e Engine) String() string {
	if e < 0 || int(e) >= len(engineNames) {
		return fmt.Sprintf("Engine(%d)", int(e))
	}
	return engineNames[e]
}

// Engines returns every known engine in declaration order.
func Engines() []Engine {
	out := make([]Engine, len(engineNames))
	for i := range engineNames {
		out[i] = Engine(i)
	}
	return out
}

// ParseEngine resolves an engine name.
func ParseEngine(s string) (Engine, bool) {
	for i, name := range engineNames {
		if name == s {
			return Engine(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the engine by name.
func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an engine name.
func (e *Engine) UnmarshalText(b []byte) error {
	v, ok := ParseEngine(string(b))
	if !ok {
		return fmt.Errorf("unknown engine %q", b)
	}
	*e = v
	return nil
}

// Item is one saved (or saveable) email record.
type Item struct {
	Key       string    `json:"key,omitempty"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Address   string    `json:"address"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Engine    Engine    `json:"engine"`
	SearchKey string    `json:"search_key"`
	Comment   string    `json:"comment,omitempty"`
	Kind      Kind      `json:"kind"`

	Action Action `json:"-"`
}

// WithAction returns a copy of the item carrying the given action tag.
func (it *Item) WithAction(a Action) *Item {
	cp := *it
	cp.Action = a
	return &cp
}

// FindByID returns the index of the item with the given id, or -1.
func FindByID(items []*Item, id string) int {
	return slices.IndexFunc(items, func(it *Item) bool {
		return it != nil && it.ID == id
	})
}

// CollectionView is the client-side view of the user's saved collection.
type CollectionView struct {
	Total              int
	PageSize           int
	Page               int
	TotalPages         int
	DeletedSinceReload int
	// Items is the visible slice. It is nil until the first page load.
	Items []*Item
	// Stale is set when a remote mutation has made Items outdated.
	Stale bool
}

// NewCollectionView returns an empty view for the start of a session.
func NewCollectionView(pageSize int) *CollectionView {
	return &CollectionView{PageSize: pageSize, Page: 1}
}

// Loaded reports whether a page has been materialized.
func (v *CollectionView) Loaded() bool {
	return v.Items != nil
}

// Clone returns a copy of the view. Items are shared with the original.
func (v *CollectionView) Clone() *CollectionView {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Items != nil {
		cp.Items = make([]*Item, len(v.Items))
		copy(cp.Items, v.Items)
	}
	return &cp
}
