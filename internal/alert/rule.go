// Package alert evaluates user-defined rules against snapshots and turns
// matches into throttled notifications.
package alert

import (
	"fmt"
	"strings"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/store"
)

// Kind is the attribute a rule matches on.
type Kind int

// Rule kinds.
const (
	KindSquawk Kind = iota + 1
	KindCallsign
	KindAircraftType
)

// ParseKind parses the stored rule kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "squawk":
		return KindSquawk, nil
	case "callsign":
		return KindCallsign, nil
	case "aircraft_type":
		return KindAircraftType, nil
	default:
		return 0, fmt.Errorf("unknown rule kind %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindSquawk:
		return "squawk"
	case KindCallsign:
		return "callsign"
	case KindAircraftType:
		return "aircraft_type"
	default:
		return "unknown"
	}
}

// Rule is a validated, enabled alert rule.
type Rule struct {
	Name  string
	Value string
	ID    uint
	Kind  Kind
}

// RuleFromStore validates a stored rule.
func RuleFromStore(r store.AlertRule) (Rule, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: %w", r.ID, err)
	}

	value := strings.TrimSpace(r.Value)
	if value == "" {
		return Rule{}, fmt.Errorf("rule %d: empty value", r.ID)
	}
	if kind != KindSquawk {
		value = strings.ToUpper(value)
	}

	return Rule{ID: r.ID, Name: r.Name, Kind: kind, Value: value}, nil
}

// Matches reports whether the aircraft satisfies the rule. Squawks match
// exactly, callsigns by prefix and aircraft types exactly ignoring case.
func (r Rule) Matches(ac adsb.Aircraft) bool {
	switch r.Kind {
	case KindSquawk:
		return strings.TrimSpace(ac.Squawk) == r.Value
	case KindCallsign:
		cs := adsb.NormalizeCallsign(ac.Callsign)
		return cs != "" && strings.HasPrefix(cs, r.Value)
	case KindAircraftType:
		return strings.EqualFold(strings.TrimSpace(ac.Type), r.Value)
	}
	return false
}
