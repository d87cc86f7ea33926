package segmented

type State int

const (
	StateInit State = iota
	StateFetchingManifest
	StateEmitting
	StateWaitingReload
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetchingManifest:
		return "fetching-manifest"
	case StateEmitting:
		return "emitting"
	case StateWaitingReload:
		return "waiting-reload"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateEnded || s == StateFailed
}
