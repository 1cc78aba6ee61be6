package vm

// Frame is a control-stack entry: the instruction index execution
// resumes at on RET.
type Frame struct {
	ReturnPC int
}

// State is the mutable execution state of one VM run. It is created
// fresh by New, Load and Reset (Run keeps the current State) and never
// shared between VM instances.
type State struct {
	DataStack    []Value
	ControlStack []Frame
	Memory       map[string]Value
	Registers    [16]Value
	PC           int
	Running      bool
	Err          error
	Steps        int
	MemoryUsage  int
}

// NewState returns a zeroed, running-false-until-Run State.
func NewState() *State {
	return &State{
		Memory: make(map[string]Value),
	}
}

// Snapshot is an immutable deep copy of a State, safe to retain after
// the live State mutates further (spec.md §4.4 dump_state).
type Snapshot struct {
	DataStack    []Value
	ControlStack []Frame
	Memory       map[string]Value
	Registers    [16]Value
	PC           int
	Running      bool
	Err          error
	Steps        int
	MemoryUsage  int
}

// DumpState returns a deep-copied snapshot of s.
func (s *State) DumpState() Snapshot {
	data := make([]Value, len(s.DataStack))
	copy(data, s.DataStack)

	ctrl := make([]Frame, len(s.ControlStack))
	copy(ctrl, s.ControlStack)

	mem := make(map[string]Value, len(s.Memory))
	for k, v := range s.Memory {
		mem[k] = v
	}

	return Snapshot{
		DataStack:    data,
		ControlStack: ctrl,
		Memory:       mem,
		Registers:    s.Registers,
		PC:           s.PC,
		Running:      s.Running,
		Err:          s.Err,
		Steps:        s.Steps,
		MemoryUsage:  s.MemoryUsage,
	}
}
