package actuator

import (
	"sync"

	"github.com/ayusman/mukha/internal/pointer"
)

// Mailbox is a single-slot, latest-value channel for pointer commands. A
// newer move replaces an unread one; consecutive scrolls accumulate.
type Mailbox struct {
	mu    sync.Mutex
	cmd   pointer.Command
	full  bool
	ready chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Put stores cmd without blocking. Commands of kind None are ignored.
func (m *Mailbox) Put(cmd pointer.Command) {
	if cmd.Kind == pointer.None {
		return
	}
	m.mu.Lock()
	if m.full && m.cmd.Kind == pointer.Scroll && cmd.Kind == pointer.Scroll {
		m.cmd.DX += cmd.DX
		m.cmd.DY += cmd.DY
	} else {
		m.cmd = cmd
	}
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the pending command, if any.
func (m *Mailbox) Take() (pointer.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return pointer.Command{}, false
	}
	cmd := m.cmd
	m.cmd = pointer.Command{}
	m.full = false
	return cmd, true
}

// Ready is signalled after Put. A signal may be stale; Take reports whether
// anything is actually pending.
func (m *Mailbox) Ready() <-chan struct{} { return m.ready }
