package item

// State is a lifecycle stage. Order below has no meaning beyond
// readability; the total order between states is implied by the
// transition function (internal/transition), not by this enumeration.
type State string

const (
	StateUnknown            State = "Unknown"
	StateRequested          State = "Requested"
	StateIndexed            State = "Indexed"
	StateScraped            State = "Scraped"
	StateDownloaded         State = "Downloaded"
	StateSymlinked          State = "Symlinked"
	StateCompleted          State = "Completed"
	StatePartiallyCompleted State = "PartiallyCompleted"
	StateFailed             State = "Failed"
	StateUnreleased         State = "Unreleased"
)

// DeriveState is the pure function mapping a leaf item's attributes to
// its lifecycle State. It never looks at children; use AggregateState
// for Show/Season nodes. Grounded on MediaItem._determine_state in the
// original Python implementation.
func DeriveState(m *MediaItem) State {
	switch {
	case m.Key != "" || m.UpdateFolder == "updated":
		return StateCompleted
	case m.Symlinked:
		return StateSymlinked
	case m.File != "" && m.Folder != "":
		return StateDownloaded
	case m.IsScraped():
		return StateScraped
	case m.Title != "":
		return StateIndexed
	case m.IMDBID != "" && m.RequestedBy != "":
		return StateRequested
	default:
		return StateUnknown
	}
}

// AggregateState derives the state of a Show or Season from its
// children's states. Episodes have no children and must never be
// passed here; callers should call DeriveState for Episodes and
// Movies.
func AggregateState(children []State) State {
	if len(children) == 0 {
		return StateUnknown
	}

	atLeast := func(min State) bool {
		for _, c := range children {
			if rank(c) < rank(min) {
				return false
			}
		}
		return true
	}
	anyAtLeast := func(min State) bool {
		for _, c := range children {
			if rank(c) >= rank(min) {
				return true
			}
		}
		return false
	}

	allCompleted := true
	anyCompleted := false
	for _, c := range children {
		if c == StateCompleted {
			anyCompleted = true
		} else {
			allCompleted = false
		}
	}
	if allCompleted {
		return StateCompleted
	}
	if anyCompleted {
		return StatePartiallyCompleted
	}

	switch {
	case atLeast(StateSymlinked):
		return StateSymlinked
	case atLeast(StateDownloaded):
		return StateDownloaded
	case atLeast(StateScraped):
		return StateScraped
	case anyAtLeast(StateIndexed):
		return StateIndexed
	case anyAtLeast(StateRequested):
		return StateRequested
	default:
		return StateUnknown
	}
}

// rank gives the per-stage ordering AggregateState needs to evaluate
// "at least" comparisons; it has no meaning outside this function.
func rank(s State) int {
	switch s {
	case StateUnknown:
		return 0
	case StateRequested:
		return 1
	case StateIndexed:
		return 2
	case StateScraped:
		return 3
	case StateDownloaded:
		return 4
	case StateSymlinked:
		return 5
	case StateCompleted:
		return 6
	default:
		return -1
	}
}

// State computes the derived lifecycle state for m, dispatching to
// AggregateState for Show/Season nodes using already-loaded children.
// Callers that only have a leaf (Movie/Episode) in hand may call
// DeriveState directly.
func (m *MediaItem) State() State {
	switch m.Kind {
	case KindShow:
		states := make([]State, len(m.Seasons))
		for i, s := range m.Seasons {
			states[i] = s.State()
		}
		return AggregateState(states)
	case KindSeason:
		states := make([]State, len(m.Episodes))
		for i, e := range m.Episodes {
			states[i] = e.State()
		}
		return AggregateState(states)
	default:
		return DeriveState(m)
	}
}
