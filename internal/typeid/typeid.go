// Package typeid issues the prefixed, sortable identifiers used across the
// service and checks identifiers received from clients.
package typeid

import (
	"errors"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser          = "user"
	PrefixRoom          = "room"
	PrefixRoomMessage   = "msg"
	PrefixDirectMessage = "dm"
	PrefixEvent         = "evt"
	PrefixConnection    = "conn"
)

var ErrWrongPrefix = errors.New("wrong id prefix")

func New(prefix string) string {
	return typeid.MustGenerate(prefix).String()
}

func NewUserID() string          { return New(PrefixUser) }
func NewRoomID() string          { return New(PrefixRoom) }
func NewRoomMessageID() string   { return New(PrefixRoomMessage) }
func NewDirectMessageID() string { return New(PrefixDirectMessage) }
func NewEventID() string         { return New(PrefixEvent) }
func NewConnectionID() string    { return New(PrefixConnection) }

// Validate reports whether id parses and carries the given prefix.
func Validate(id, prefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("parse %q: %w", id, err)
	}
	if got := parsed.Prefix(); got != prefix {
		return fmt.Errorf("%w: %q is %q, want %q", ErrWrongPrefix, id, got, prefix)
	}
	return nil
}

// UserIDs trims and validates a client-supplied list of user ids. Valid ids
// come back in first-seen order without duplicates; the rest are returned
// untouched in invalid.
func UserIDs(raw []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	valid = make([]string, 0, len(raw))
	for _, r := range raw {
		id := strings.TrimSpace(r)
		if Validate(id, PrefixUser) != nil {
			invalid = append(invalid, r)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	return valid, invalid
}
