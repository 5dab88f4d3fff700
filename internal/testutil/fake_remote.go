package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/remote"
	"github.com/wesm/mailsaver/internal/session"
)

// FakeRemote is an in-memory remote collection service. Items are scoped to
// the session carried by the request context, like the real server.
type FakeRemote struct {
	mu       sync.Mutex
	items    map[string][]*model.Item // by user id
	users    map[string]string        // email -> user id
	nextKey  int
	calls    map[string]int
	errs     map[string]error
	counts   map[string]int
	hasCount map[string]bool

	// SearchResults is returned by Search, truncated to the limit.
	SearchResults []*model.Item
	// OnCall runs after an operation has been applied and before it returns.
	OnCall func(op string)
	// TokenTTL sets the expiry returned by Register and Login.
	TokenTTL time.Duration
}

// NewFakeRemote returns an empty FakeRemote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		items:    make(map[string][]*model.Item),
		users:    make(map[string]string),
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		counts:   make(map[string]int),
		hasCount: make(map[string]bool),
		TokenTTL: time.Hour,
	}
}

// FailOn makes op return err until cleared with FailOn(op, nil).
func (f *FakeRemote) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// OverrideCount makes CountByField report n regardless of the stored items.
func (f *FakeRemote) OverrideCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts["*"] = n
	f.hasCount["*"] = true
}

// Calls returns how many times op was invoked.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (f *FakeRemote) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Seed stores n items for userID with ids "<prefix>-0".."<prefix>-(n-1)".
func (f *FakeRemote) Seed(userID, prefix string, n int) []*model.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Item
	for i := 0; i < n; i++ {
		it := &model.Item{
			ID:      fmt.Sprintf("%s-%d", prefix, i),
			UserID:  userID,
			Address: fmt.Sprintf("%s%d@example.com", prefix, i),
			Kind:    model.KindReal,
		}
		f.nextKey++
		it.Key = fmt.Sprintf("key-%d", f.nextKey)
		f.items[userID] = append(f.items[userID], it)
		out = append(out, it)
	}
	return out
}

// Items returns a copy of userID's stored items.
func (f *FakeRemote) Items(userID string) []*model.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Item, len(f.items[userID]))
	copy(out, f.items[userID])
	return out
}

// begin records the call and returns the injected error and the caller.
func (f *FakeRemote) begin(ctx context.Context, op string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err := f.errs[op]; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Remote(op, err)
	}
	s, ok := session.FromContext(ctx)
	if !ok {
		return "", nil
	}
	return s.UserID, nil
}

func (f *FakeRemote) done(op string) {
	if f.OnCall != nil {
		f.OnCall(op)
	}
}

func (f *FakeRemote) requireUser(op, uid string) error {
	if uid == "" {
		return errs.Remote(op, fmt.Errorf("API error (401): missing token"))
	}
	return nil
}

func field(it *model.Item, name string) string {
	switch name {
	case "key":
		return it.Key
	case "id":
		return it.ID
	case "user_id":
		return it.UserID
	case "address":
		return it.Address
	case "engine":
		return it.Engine.String()
	case "kind":
		return it.Kind.String()
	case "search_key":
		return it.SearchKey
	}
	return ""
}

func (f *FakeRemote) Create(ctx context.Context, item *model.Item) (string, error) {
	uid, err := f.begin(ctx, "create")
	if err == nil {
		err = f.requireUser("create", uid)
	}
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	cp := *item
	cp.Action = model.ActionNone
	cp.UserID = uid
	f.nextKey++
	cp.Key = fmt.Sprintf("key-%d", f.nextKey)
	f.items[uid] = append(f.items[uid], &cp)
	f.mu.Unlock()
	f.done("create")
	return cp.Key, nil
}

func (f *FakeRemote) QueryByField(ctx context.Context, name, value string) ([]*model.Item, error) {
	uid, err := f.begin(ctx, "queryByField")
	if err == nil {
		err = f.requireUser("queryByField", uid)
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	out := []*model.Item{}
	for _, it := range f.items[uid] {
		if field(it, name) == value {
			cp := *it
			out = append(out, &cp)
		}
	}
	f.mu.Unlock()
	f.done("queryByField")
	return out, nil
}

func (f *FakeRemote) DeleteByKey(ctx context.Context, key string) (string, error) {
	uid, err := f.begin(ctx, "deleteByKey")
	if err == nil {
		err = f.requireUser("deleteByKey", uid)
	}
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	items := f.items[uid]
	found := false
	for i, it := range items {
		if it.Key == key {
			f.items[uid] = append(items[:i:i], items[i+1:]...)
			found = true
			break
		}
	}
	f.mu.Unlock()
	if !found {
		return "", errs.Remote("deleteByKey", fmt.Errorf("API error (404): item %s not found", key))
	}
	f.done("deleteByKey")
	return "deleted", nil
}

func (f *FakeRemote) CountByField(ctx context.Context, name, value string) (int, error) {
	uid, err := f.begin(ctx, "countByField")
	if err == nil {
		err = f.requireUser("countByField", uid)
	}
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	n := 0
	if f.hasCount["*"] {
		n = f.counts["*"]
	} else {
		for _, it := range f.items[uid] {
			if field(it, name) == value {
				n++
			}
		}
	}
	f.mu.Unlock()
	f.done("countByField")
	return n, nil
}

func (f *FakeRemote) Search(ctx context.Context, q remote.SearchQuery) ([]*model.Item, error) {
	uid, err := f.begin(ctx, "search")
	if err == nil {
		err = f.requireUser("search", uid)
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	var out []*model.Item
	for _, it := range f.SearchResults {
		if len(out) == q.Limit {
			break
		}
		if it.Engine != q.Engine || !strings.Contains(strings.ToLower(it.Address+" "+it.SearchKey), strings.ToLower(q.Key)) {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	f.mu.Unlock()
	f.done("search")
	return out, nil
}

func (f *FakeRemote) Register(ctx context.Context, email, password string) (*remote.AuthResult, error) {
	if _, err := f.begin(ctx, "register"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if _, ok := f.users[strings.ToLower(email)]; ok {
		f.mu.Unlock()
		return nil, errs.Auth(errs.AuthEmailTaken, fmt.Errorf("register %s", email))
	}
	uid := fmt.Sprintf("user-%d", len(f.users)+1)
	f.users[strings.ToLower(email)] = uid
	f.mu.Unlock()
	f.done("register")
	return &remote.AuthResult{UserID: uid, Token: "token-" + uid, ExpiresAt: time.Now().Add(f.TokenTTL)}, nil
}

func (f *FakeRemote) Login(ctx context.Context, email, password string) (*remote.AuthResult, error) {
	if _, err := f.begin(ctx, "login"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	uid, ok := f.users[strings.ToLower(email)]
	f.mu.Unlock()
	if !ok {
		return nil, errs.Auth(errs.AuthInvalidCredentials, fmt.Errorf("login %s", email))
	}
	f.done("login")
	return &remote.AuthResult{UserID: uid, Token: "token-" + uid, ExpiresAt: time.Now().Add(f.TokenTTL)}, nil
}
