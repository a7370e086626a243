package routing

import "github.com/drblury/eventgateway/internal/event"

// Predicate is a pure test over an event.
type Predicate interface {
	Matches(ev event.Event) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ev event.Event) bool

func (f PredicateFunc) Matches(ev event.Event) bool {
	return f(ev)
}

// NodeType matches node resources whose node type equals expected.
func NodeType(expected string) Predicate {
	return PredicateFunc(func(ev event.Event) bool {
		nodeType, ok := ev.Resource.NodeType()
		return ok && nodeType == expected
	})
}

// HasAncestor matches resources whose primary hierarchy contains id. An empty
// id matches nothing, so entries without an id never route as scoped.
func HasAncestor(id string) Predicate {
	return PredicateFunc(func(ev event.Event) bool {
		if id == "" {
			return false
		}
		for _, entry := range ev.Resource.PrimaryHierarchy {
			if entry.ID == id {
				return true
			}
		}
		return false
	})
}

// And matches when every predicate matches. And() matches everything.
func And(preds ...Predicate) Predicate {
	return PredicateFunc(func(ev event.Event) bool {
		for _, p := range preds {
			if !p.Matches(ev) {
				return false
			}
		}
		return true
	})
}

// Or matches when at least one predicate matches. Or() matches nothing.
func Or(preds ...Predicate) Predicate {
	return PredicateFunc(func(ev event.Event) bool {
		for _, p := range preds {
			if p.Matches(ev) {
				return true
			}
		}
		return false
	})
}

func Not(p Predicate) Predicate {
	return PredicateFunc(func(ev event.Event) bool {
		return !p.Matches(ev)
	})
}
