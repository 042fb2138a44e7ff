package session

// State is the derived session state. It is recomputed on demand from the
// stored credential and the current time and never persisted.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	// Expiring is Authenticated with less than the renewal threshold left.
	Expiring
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case Authenticated:
		return "Authenticated"
	case Expiring:
		return "Expiring"
	default:
		return "Unknown"
	}
}

// IsAuthenticated is true for Authenticated and Expiring.
func (s State) IsAuthenticated() bool {
	return s == Authenticated || s == Expiring
}
