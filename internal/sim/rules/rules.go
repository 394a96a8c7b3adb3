// Package rules implements the identifier rule language shared by every catalog lookup.
//
// A rule is an identifier ("minecraft:stone"), a bare name ("stone") or a fragment ("ore").
// Bare rules also match by substring; namespaced rules only match exactly. Each leading "!"
// toggles negation, and a leading "#" (after any "!") scopes the rule to a tag list.
package rules

import "strings"

const (
	NegateMarker = "!"
	TagMarker    = "#"
	Separator    = ":"
)

// Result is the outcome of one rule against one value.
type Result uint8

const (
	Miss Result = iota
	Hit
	NegatedHit
)

// Namespace returns the part of id before the separator, or "" when id has none.
func Namespace(id string) string {
	ns, _, ok := strings.Cut(id, Separator)
	if !ok {
		return ""
	}
	return ns
}

// Name returns the namespace-relative part of id.
func Name(id string) string {
	_, name, ok := strings.Cut(id, Separator)
	if !ok {
		return id
	}
	return name
}

// Matches reports whether value satisfies rule. Negation inverts the final result.
func Matches(value, rule string) bool {
	neg, r := split(rule)
	return positive(value, r) != neg
}

// Eval evaluates rule against value and reports whether it is a positive hit, a negated hit
// (the rule is negated and its inner rule matched) or neither.
func Eval(value, rule string) Result {
	neg, r := split(rule)
	if !positive(value, r) {
		return Miss
	}
	if neg {
		return NegatedHit
	}
	return Hit
}

// ListMatches is true iff at least one rule hits and no negated rule hits.
func ListMatches(value string, rules []string) bool {
	hit := false
	for _, r := range rules {
		switch Eval(value, r) {
		case NegatedHit:
			return false
		case Hit:
			hit = true
		}
	}
	return hit
}

// EvalTarget evaluates a rule that may be tag-scoped: "#stone" and "!#stone" are checked
// against tags, anything else against id.
func EvalTarget(id string, tags []string, rule string) Result {
	neg, r := split(rule)
	if !strings.HasPrefix(r, TagMarker) {
		return Eval(id, rule)
	}
	inner := strings.TrimPrefix(r, TagMarker)
	for _, t := range tags {
		if positive(t, inner) {
			if neg {
				return NegatedHit
			}
			return Hit
		}
	}
	return Miss
}

// TargetMatches applies the ListMatches policy across mixed id and tag rules.
func TargetMatches(id string, tags []string, rules []string) bool {
	hit := false
	for _, r := range rules {
		switch EvalTarget(id, tags, r) {
		case NegatedHit:
			return false
		case Hit:
			hit = true
		}
	}
	return hit
}

// split strips every leading negation marker; an odd count negates.
func split(rule string) (bool, string) {
	neg := false
	for strings.HasPrefix(rule, NegateMarker) {
		neg = !neg
		rule = rule[len(NegateMarker):]
	}
	return neg, rule
}

func positive(value, rule string) bool {
	if rule == "" {
		return false
	}
	if rule == value {
		return true
	}
	if strings.Contains(rule, Separator) {
		return false
	}
	name := Name(value)
	if rule == name {
		return true
	}
	if strings.Contains(value, rule) {
		return true
	}
	return strings.Contains(name, rule)
}
