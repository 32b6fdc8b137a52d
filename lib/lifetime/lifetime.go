package lifetime

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("lifetime")

// ErrShutdown is returned by Register after Shutdown has started
var ErrShutdown = errors.New("lifetime: shut down")

// Resource is anything that has to be flushed and closed before the process exits.
type Resource interface {
	ForceFlush() error
	Close() error
}

// CloseFunc adapts a close function to a Resource that needs no flush.
type CloseFunc func() error

func (f CloseFunc) ForceFlush() error { return nil }

func (f CloseFunc) Close() error { return f() }

type entry struct {
	name     string
	resource Resource
}

// Lifetime collects resources and releases them exactly once on Shutdown.
// Resources are released in reverse registration order, so a resource that
// was opened on top of another one is released first.
//
// Thread-safety: all methods are safe for concurrent use.
type Lifetime struct {
	mu        sync.Mutex
	resources []entry
	down      bool
	done      chan struct{}
	err       error
}

// New returns an empty lifetime.
func New() *Lifetime {
	return &Lifetime{done: make(chan struct{})}
}

// Register adds a resource. name is only used for logging and errors.
func (l *Lifetime) Register(name string, r Resource) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return ErrShutdown
	}
	l.resources = append(l.resources, entry{name: name, resource: r})
	log.Debugf("registered %s", name)
	return nil
}

// Len returns the number of registered resources.
func (l *Lifetime) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.resources)
}

// Shutdown force-flushes and closes every registered resource. All resources
// are released even if some fail; the errors are combined. Resources whose
// ForceFlush reports db.ErrClosed were already closed and are skipped. Later
// calls return the result of the first one.
func (l *Lifetime) Shutdown() error {
	l.mu.Lock()
	if l.down {
		l.mu.Unlock()
		<-l.done
		return l.err
	}
	l.down = true
	resources := l.resources
	l.resources = nil
	l.mu.Unlock()

	var err error
	for i := len(resources) - 1; i >= 0; i-- {
		e := resources[i]
		ferr := e.resource.ForceFlush()
		if errors.Is(ferr, db.ErrClosed) {
			log.Debugf("%s was closed by its owner", e.name)
			continue
		}
		if ferr != nil {
			log.Warningf("failed to flush %s: %v", e.name, ferr)
			err = multierr.Append(err, fmt.Errorf("flush %s: %w", e.name, ferr))
		}
		if cerr := e.resource.Close(); cerr != nil {
			log.Warningf("failed to close %s: %v", e.name, cerr)
			err = multierr.Append(err, fmt.Errorf("close %s: %w", e.name, cerr))
		}
	}
	log.Infof("released %d resources", len(resources))

	l.err = err
	close(l.done)
	return err
}

// Done is closed once Shutdown has released all resources.
func (l *Lifetime) Done() <-chan struct{} {
	return l.done
}

// ShutdownOnSignal runs Shutdown when the process receives SIGINT or SIGTERM
// and then exits. The returned function stops listening, it may be called more than once.
func (l *Lifetime) ShutdownOnSignal() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			log.Infof("received %s, shutting down", sig)
			code := 0
			if err := l.Shutdown(); err != nil {
				log.Errorf("shutdown: %v", err)
				code = 1
			}
			os.Exit(code)
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
