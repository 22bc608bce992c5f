// Package memory records publish notifications in-process for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/essaypub/internal/essay"
)

// Notifier stores notifications for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []essay.Published
	err    error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent Notify calls return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records the event and returns a pseudo message ID.
func (n *Notifier) Notify(_ context.Context, event essay.Published) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.events = append(n.events, event)
	return fmt.Sprintf("memory-%d", len(n.events)), nil
}

// Events returns a copy of the recorded notifications.
func (n *Notifier) Events() []essay.Published {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]essay.Published, len(n.events))
	copy(out, n.events)
	return out
}
