package order

import "fmt"

// StateFilter restricts a listing to a single state, or lets every state through.
type StateFilter int

const (
	AnyState StateFilter = iota
	OnlyPending
	OnlyAccepted
	OnlyRejected
)

// State returns the state the filter selects. ok is false for AnyState.
func (f StateFilter) State() (s State, ok bool) {
	switch f {
	case OnlyPending:
		return StatePending, true
	case OnlyAccepted:
		return StateAccepted, true
	case OnlyRejected:
		return StateRejected, true
	default:
		return "", false
	}
}

// DateSort orders a listing by creation time.
type DateSort int

const (
	// SortDefault leaves storage order (ascending id).
	SortDefault DateSort = iota
	SortNewest
	SortOldest
)

// Filter combines the state and date options of an order listing.
type Filter struct {
	State StateFilter
	Date  DateSort
}

// InvalidFilterError reports an unrecognized filter value.
type InvalidFilterError struct {
	Field string
	Value string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s filter %q", e.Field, e.Value)
}

// ParseStateFilter maps a query value to a StateFilter. The empty string
// selects every state.
func ParseStateFilter(v string) (StateFilter, error) {
	switch v {
	case "":
		return AnyState, nil
	case string(StatePending):
		return OnlyPending, nil
	case string(StateAccepted):
		return OnlyAccepted, nil
	case string(StateRejected):
		return OnlyRejected, nil
	default:
		return AnyState, &InvalidFilterError{Field: "state", Value: v}
	}
}

// ParseDateSort maps a query value to a DateSort.
func ParseDateSort(v string) (DateSort, error) {
	switch v {
	case "":
		return SortDefault, nil
	case "Newest":
		return SortNewest, nil
	case "Oldest":
		return SortOldest, nil
	default:
		return SortDefault, &InvalidFilterError{Field: "date", Value: v}
	}
}

// ParseFilter parses both listing options. Unknown values are rejected
// instead of silently ignored.
func ParseFilter(state, date string) (Filter, error) {
	sf, err := ParseStateFilter(state)
	if err != nil {
		return Filter{}, err
	}
	ds, err := ParseDateSort(date)
	if err != nil {
		return Filter{}, err
	}
	return Filter{State: sf, Date: ds}, nil
}
