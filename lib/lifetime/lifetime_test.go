package lifetime

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/evkv/lib/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeResource struct {
	name     string
	log      *[]string
	flushErr error
	closeErr error
}

func (f *fakeResource) ForceFlush() error {
	*f.log = append(*f.log, "flush "+f.name)
	return f.flushErr
}

func (f *fakeResource) Close() error {
	*f.log = append(*f.log, "close "+f.name)
	return f.closeErr
}

func TestShutdownOrder(t *testing.T) {
	var calls []string
	l := New()
	require.NoError(t, l.Register("a", &fakeResource{name: "a", log: &calls}))
	require.NoError(t, l.Register("b", &fakeResource{name: "b", log: &calls}))
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.Shutdown())
	require.Equal(t, []string{"flush b", "close b", "flush a", "close a"}, calls)

	// second shutdown releases nothing
	require.NoError(t, l.Shutdown())
	require.Len(t, calls, 4)

	require.ErrorIs(t, l.Register("c", &fakeResource{name: "c", log: &calls}), ErrShutdown)

	select {
	case <-l.Done():
	default:
		t.Fatal("Done() not closed after Shutdown")
	}
}

func TestShutdownCombinesErrors(t *testing.T) {
	var calls []string
	errFlush := errors.New("flush failed")
	errClose := errors.New("close failed")

	l := New()
	require.NoError(t, l.Register("a", &fakeResource{name: "a", log: &calls, closeErr: errClose}))
	require.NoError(t, l.Register("b", &fakeResource{name: "b", log: &calls, flushErr: errFlush}))

	err := l.Shutdown()
	require.Error(t, err)
	require.ErrorIs(t, err, errFlush)
	require.ErrorIs(t, err, errClose)
	require.Len(t, multierr.Errors(err), 2)

	// every resource is closed despite the failures
	require.Equal(t, []string{"flush b", "close b", "flush a", "close a"}, calls)

	require.Equal(t, err, l.Shutdown())
}

func TestConcurrentShutdown(t *testing.T) {
	var calls []string
	l := New()
	require.NoError(t, l.Register("a", &fakeResource{name: "a", log: &calls}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Shutdown()
		}()
	}
	wg.Wait()

	require.Equal(t, []string{"flush a", "close a"}, calls)
}

func TestSkipsClosedResources(t *testing.T) {
	var calls []string
	l := New()
	require.NoError(t, l.Register("a", &fakeResource{name: "a", log: &calls, flushErr: fmt.Errorf("wrapped: %w", db.ErrClosed)}))

	require.NoError(t, l.Shutdown())
	require.Equal(t, []string{"flush a"}, calls)
}
