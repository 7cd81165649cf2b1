package mesa

// agent.go implements component C7: the shared I/O region and the agent
// framing that lets virtual devices plug into a fixed slot of it. An agent
// is a capability record -- index, name, FCB size, Initialize and Call --
// rather than a polymorphic class hierarchy, per the design notes' "deep
// inheritance becomes a sum type" guidance. Concrete agents (disk, floppy,
// keyboard, network, ...) live in internal/agent and register themselves
// through EnableAgent.

import (
	"errors"
	"fmt"
)

// maxAgents bounds the number of agent slots the I/O region can address.
// The original implementation sizes this by the number of agent classes it
// links in; this emulator picks a fixed, generous bound instead.
const maxAgents = 32

// ioRegionBase is the default virtual page at which the agent I/O region
// begins (§3); EnableIORegion takes the page as its argument.
const ioRegionBase Word = 0x80

// Agent is a virtual device pluggable into one slot of the I/O region. Its
// FCB is carved out of the I/O region at Enable time and handed to
// Initialize; thereafter the interpreter's CALLAGENT opcode invokes Call
// synchronously on the processor goroutine. The network agent hands its
// socket I/O to its own worker goroutines and returns from Call at once,
// reporting results through its FCB memory and Machine.NotifyInterrupt;
// the disk agent performs each transfer inside Call.
type Agent interface {
	// Index is this agent's fixed slot number in the I/O region.
	Index() int

	// Name is a short identifying name, used in diagnostics.
	Name() string

	// FCBSize is the size, in words, of this agent's FCB.
	FCBSize() int

	// Initialize is called once, after the FCB has been mapped into the
	// I/O region and its address recorded in ioRegionPtr.fcbptrs[Index()].
	Initialize(m *Machine, fcb Long) error

	// Call is invoked synchronously on the processor goroutine every time
	// CALLAGENT(Index()) is dispatched.
	Call(m *Machine) error
}

// agentSlot records a registered agent together with the FCB address it
// was assigned at Enable time.
type agentSlot struct {
	agent Agent
	fcb   Long
}

// ErrAgentConflict is returned by EnableAgent when the requested index is
// already occupied.
var ErrAgentConflict = errors.New("mesa: agent index already enabled")

// ErrNoSuchAgent is returned by CallAgent when no agent has been enabled
// at the given index.
var ErrNoSuchAgent = errors.New("mesa: call to unregistered agent")

// ioDescriptorWords is the size of the I/O region descriptor:
// an array of FCB pointers, one per agent slot. Each entry is a double
// word (a full 32-bit virtual address), so the descriptor occupies
// maxAgents*2 words starting at ioRegionBase*PageWords.
const ioDescriptorWords = maxAgents * 2

// EnableIORegion reserves the descriptor words of the I/O region at vp
// (ioRegionBase by default) as ordinary, non-vacant, non-protected memory,
// so that fcbptrs can be written into it by EnableAgent.
func (m *Machine) EnableIORegion(vp Word) error {
	pages := (ioDescriptorWords + PageWords - 1) / PageWords
	if pages == 0 {
		pages = 1
	}

	for i := 0; i < pages; i++ {
		rp, ok := m.Mem.NextFreeRealPage()
		if !ok {
			return fmt.Errorf("mesa: EnableIORegion: out of real memory")
		}

		m.Mem.WriteMap(vp+Word(i), MapFetch|MapStore, rp)
	}

	m.ioBase = Long(vp) * PageWords
	m.ioNext = m.ioBase + ioDescriptorWords

	return nil
}

// EnableAgent carves agent.FCBSize() words out of the I/O region for agent,
// writes the resulting address into the descriptor at agent.Index(), and
// calls agent.Initialize with it.
func (m *Machine) EnableAgent(agent Agent) error {
	idx := agent.Index()
	if idx < 0 || idx >= maxAgents {
		return fmt.Errorf("mesa: EnableAgent %s: index %d out of range", agent.Name(), idx)
	}

	if m.agents[idx] != nil {
		return fmt.Errorf("%w: %s at %d", ErrAgentConflict, agent.Name(), idx)
	}

	fcb := m.ioNext
	m.ioNext += Long(agent.FCBSize())

	for va := fcb; va < m.ioNext; va++ {
		if _, err := m.Mem.Store(va); err != nil {
			return fmt.Errorf("mesa: EnableAgent %s: %w", agent.Name(), err)
		}
	}

	ptr, err := m.Mem.Store(m.ioBase + Long(idx)*2)
	if err != nil {
		return err
	}

	*ptr = LowWord(fcb)

	ptr, err = m.Mem.Store(m.ioBase + Long(idx)*2 + 1)
	if err != nil {
		return err
	}

	*ptr = HighWord(fcb)

	m.agents[idx] = &agentSlot{agent: agent, fcb: fcb}

	return agent.Initialize(m, fcb)
}

// CallAgent is the single entry point from the interpreter (the CALLAGENT
// escape opcode): it looks up the agent registered at index i and invokes
// its Call method synchronously.
func (m *Machine) CallAgent(i int) error {
	if i < 0 || i >= maxAgents || m.agents[i] == nil {
		return fmt.Errorf("%w: index %d", ErrNoSuchAgent, i)
	}

	return m.agents[i].agent.Call(m)
}

// AgentFCB returns the FCB address assigned to the agent at index i, for
// diagnostics and tests.
func (m *Machine) AgentFCB(i int) (Long, bool) {
	if i < 0 || i >= maxAgents || m.agents[i] == nil {
		return 0, false
	}

	return m.agents[i].fcb, true
}
