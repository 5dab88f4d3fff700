// Package validate holds the pre-flight checks that gate every workflow.
// Each check returns a resolved value or an *errs.Error naming the
// offending field.
//
// Presence rules: nil, a nil pointer and a blank string are missing. A
// numeric zero is present.
package validate

import (
	"fmt"
	"net/mail"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/session"
)

// Field pairs a field name with the value under test.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for Field{name, value}.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// IsMissing reports whether v counts as absent.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case *string:
		return x == nil || strings.TrimSpace(*x) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Required fails with missing-parameter naming every absent field.
func Required(fields ...Field) error {
	var missing []string
	for _, f := range fields {
		if IsMissing(f.Value) {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return errs.Missing(missing...)
	}
	return nil
}

// Int resolves an int from an int, *int or decimal string.
func Int(field string, v any) (int, error) {
	if IsMissing(v) {
		return 0, errs.Missing(field)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case *int:
		return *x, nil
	case int64:
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, errs.Invalid(field, "not a number: %q", x)
		}
		return n, nil
	default:
		return 0, errs.Invalid(field, "unsupported type %T", v)
	}
}

// IntRange resolves an int and checks lo <= n <= hi.
func IntRange(field string, v any, lo, hi int) (int, error) {
	n, err := Int(field, v)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, errs.Invalid(field, "%d outside [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// OneOf checks membership in a closed set.
func OneOf[T comparable](field string, v T, set []T) (T, error) {
	if slices.Contains(set, v) {
		return v, nil
	}
	return v, errs.Invalid(field, "%v is not one of %v", v, set)
}

// Engine parses an engine name.
func Engine(field, s string) (model.Engine, error) {
	if IsMissing(s) {
		return 0, errs.Missing(field)
	}
	e, ok := model.ParseEngine(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return 0, errs.Invalid(field, "unknown engine %q", s)
	}
	return e, nil
}

// Kind parses an item kind.
func Kind(field, s string) (model.Kind, error) {
	if IsMissing(s) {
		return 0, errs.Missing(field)
	}
	k, ok := model.ParseKind(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return 0, errs.Invalid(field, "unknown kind %q", s)
	}
	return k, nil
}

// Email checks an address and returns it with an ASCII domain.
func Email(field, s string) (string, error) {
	if IsMissing(s) {
		return "", errs.Missing(field)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return "", errs.Invalid(field, "parse address: %v", err)
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return "", errs.Invalid(field, "address %q has no domain", s)
	}
	domain, err := idna.Lookup.ToASCII(addr.Address[at+1:])
	if err != nil {
		return "", errs.Invalid(field, "domain: %v", err)
	}
	return addr.Address[:at+1] + strings.ToLower(domain), nil
}

// Password checks a minimum length.
func Password(field, s string, minLen int) (string, error) {
	if s == "" {
		return "", errs.Missing(field)
	}
	if len([]rune(s)) < minLen {
		return "", errs.Invalid(field, "shorter than %d characters", minLen)
	}
	return s, nil
}

// SearchKey normalizes a search key.
func SearchKey(field, s string) (string, error) {
	if IsMissing(s) {
		return "", errs.Missing(field)
	}
	return norm.NFC.String(strings.TrimSpace(s)), nil
}

// Authenticated passes only when the session carries a user id and token and
// the token has not expired.
func Authenticated(s *session.Session, now time.Time) error {
	if s == nil {
		return errs.Missing("user_id", "token")
	}
	if err := Required(F("user_id", s.UserID), F("token", s.Token)); err != nil {
		return err
	}
	if !s.Verified(now) {
		return errs.Auth(errs.AuthSessionExpired, fmt.Errorf("token expired at %s", s.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}

// ItemIn resolves the item with the given id.
func ItemIn(field string, items []*model.Item, id string) (*model.Item, error) {
	if IsMissing(id) {
		return nil, errs.Missing(field)
	}
	i := model.FindByID(items, id)
	if i < 0 {
		return nil, errs.Missing(field)
	}
	return items[i], nil
}

// NotTagged fails with invalid-value when the item already carries action.
func NotTagged(field string, it *model.Item, action model.Action) error {
	if it.Action == action {
		return errs.Invalid(field, "item %s already %s", it.ID, action)
	}
	return nil
}
