package state

import (
	"sync"

	"github.com/aristath/launchpad/internal/domain"
)

// Guard is a non-reentrant single-flight lock. A component acquires it at the
// top of each mutating entry point and releases it on every exit path:
//
//	release, err := g.Enter()
//	if err != nil {
//		return err
//	}
//	defer release()
//
// A nested Enter while the guard is held fails with domain.ErrReentrant instead
// of blocking, because the only way to get there in the serialized model is a
// call back in from a ledger hook or venue.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// Enter acquires the guard
func (g *Guard) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, domain.ErrReentrant
	}
	g.held = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.held = false
			g.mu.Unlock()
		})
	}, nil
}

// Held reports whether the guard is currently held
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
