package archive

// Mode selects how much work a single Write call performs.
type Mode int

const (
	// ModeStep performs one bounded unit of work and returns, so callers
	// can interleave archiving with other work.
	ModeStep Mode = iota
	// ModeBlock repeats units of work until the archive is finished.
	ModeBlock
)

func (m Mode) String() string {
	switch m {
	case ModeStep:
		return "step"
	case ModeBlock:
		return "block"
	default:
		return "unknown"
	}
}

// State reports whether the writer still has queued or in-flight work.
type State int

const (
	StateInProgress State = iota
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in-progress"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
