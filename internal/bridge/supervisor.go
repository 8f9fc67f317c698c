package bridge

import (
	"context"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"midi-bridge/internal/logger"
)

// Supervisor runs several bridges side by side. Bridges share nothing: each
// one has its own transport, sink, decoder and context.
type Supervisor struct {
	bridges []*Bridge
	states  cmap.ConcurrentMap[string, State]
	log     *logrus.Entry
}

// NewSupervisor creates a supervisor for the given bridges. Bridge names must
// be unique.
func NewSupervisor(bridges ...*Bridge) *Supervisor {
	return &Supervisor{
		bridges: bridges,
		states:  cmap.New[State](),
		log:     logger.New("supervisor"),
	}
}

// Run starts every bridge and waits for all of them to finish. A bridge that
// fails does not stop the others. The first fatal error is returned;
// disconnections are not fatal. The final state of every bridge is logged.
func (s *Supervisor) Run(ctx context.Context) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fatal error
	)

	for _, b := range s.bridges {
		name := b.Name()
		s.states.Set(name, StateStarting)
		b.notify = func(st State) {
			s.states.Set(name, st)
		}

		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()

			bctx, cancel := context.WithCancel(ctx)
			defer cancel()

			err := b.Run(bctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrDisconnected):
				s.log.WithField("bridge", name).Info("Bridge finished")
			default:
				s.log.WithError(err).WithField("bridge", name).Error("Bridge failed")
				mu.Lock()
				if fatal == nil {
					fatal = errors.Wrap(err, name)
				}
				mu.Unlock()
			}
		}(b)
	}

	wg.Wait()
	s.log.WithFields(s.Summary()).Info("All bridges finished")
	return fatal
}

// Summary returns the state of every bridge as log fields
func (s *Supervisor) Summary() logrus.Fields {
	fields := logrus.Fields{}
	for name, st := range s.states.Items() {
		fields[name] = string(st)
	}
	return fields
}

// Failed lists the bridges whose last state is StateFailed
func (s *Supervisor) Failed() []string {
	var failed []string
	s.states.IterCb(func(name string, st State) {
		if st == StateFailed {
			failed = append(failed, name)
		}
	})
	return failed
}

// State returns the last state reported by a bridge
func (s *Supervisor) State(name string) (State, bool) {
	return s.states.Get(name)
}
