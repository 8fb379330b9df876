package models

import (
	"fmt"
	"strings"
)

// Status 文件处理状态
type Status uint8

const (
	StatusNew Status = iota + 1
	StatusProcessing
	StatusReady
	StatusError
)

var statusNames = map[Status]string{
	StatusNew:        "new",
	StatusProcessing: "processing",
	StatusReady:      "ready",
	StatusError:      "error",
}

// transitions is the forward lifecycle graph: new → processing → {ready, error}.
var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing},
	StatusProcessing: {StatusReady, StatusError},
}

// ParseStatus parses the wire name of a status.
func ParseStatus(s string) (Status, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for st, n := range statusNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// CanTransition reports whether s → to is an edge of the lifecycle graph.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when s → to is not allowed.
func CheckTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// PathTo returns the forward path from StatusNew to target, excluding new itself.
func PathTo(target Status) []Status {
	switch target {
	case StatusProcessing:
		return []Status{StatusProcessing}
	case StatusReady:
		return []Status{StatusProcessing, StatusReady}
	case StatusError:
		return []Status{StatusProcessing, StatusError}
	default:
		return nil
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
