package relay_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func TestScheduler_SpawnAwait(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	f := s.Spawn(root, func(context.Context) (any, error) {
		return 42, nil
	})

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestScheduler_AwaitReRaisesFailure(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	want := errors.New("child failed")
	f := s.Spawn(root, func(context.Context) (any, error) {
		return nil, want
	})

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestScheduler_SpawnsRunConcurrently(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	// Two children that each wait for the other would deadlock if spawns
	// were serialized.
	a := make(chan struct{})
	b := make(chan struct{})

	f1 := s.Spawn(root, func(ctx context.Context) (any, error) {
		close(a)
		select {
		case <-b:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	f2 := s.Spawn(root, func(ctx context.Context) (any, error) {
		close(b)
		select {
		case <-a:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	_, err := f1.Await(context.Background())
	require.NoError(t, err)
	_, err = f2.Await(context.Background())
	require.NoError(t, err)
}

func TestScheduler_PanicBecomesError(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	f := s.Spawn(root, func(context.Context) (any, error) {
		panic("child panic")
	})

	_, err := f.Await(context.Background())
	var pe *relay.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "child panic", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestScheduler_CancelPropagatesToDescendants(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())

	cause := errors.New("request aborted")
	grandchildSaw := make(chan error, 1)

	f := s.Spawn(root, func(ctx context.Context) (any, error) {
		gc := s.Spawn(root, func(gctx context.Context) (any, error) {
			<-gctx.Done()
			grandchildSaw <- context.Cause(gctx)
			return nil, gctx.Err()
		})
		return gc.Await(ctx)
	})

	// Let the tree get going, then cancel the root.
	time.Sleep(10 * time.Millisecond)
	root.Cancel(cause)

	_, err := f.Await(context.Background())
	require.Error(t, err)

	select {
	case got := <-grandchildSaw:
		assert.ErrorIs(t, got, cause)
	case <-time.After(time.Second):
		t.Fatal("grandchild never observed cancellation")
	}

	root.Join()
}

func TestScheduler_SpawnAfterCancelSkipsWork(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())

	cause := errors.New("done already")
	root.Cancel(cause)

	ran := false
	f := s.Spawn(root, func(context.Context) (any, error) {
		ran = true
		return nil, nil
	})

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, cause)
	root.Join()
	assert.False(t, ran)
}

func TestScheduler_JoinWaitsUnawaitedChildren(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	var finished atomic.Int32
	for i := 0; i < 5; i++ {
		s.Spawn(root, func(context.Context) (any, error) {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			return nil, nil
		})
	}

	root.Join()
	assert.Equal(t, int32(5), finished.Load())
}

func TestScheduler_JoinWaitsNestedSubtree(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	var finished atomic.Int32
	ready := make(chan struct{})
	f := s.Spawn(root, func(context.Context) (any, error) {
		<-ready // stay pending until the grandchild is attached
		return nil, nil
	})
	s.Spawn(f.Task(), func(context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return nil, nil
	})
	close(ready)

	root.Join()
	assert.Equal(t, int32(1), finished.Load())
}

func TestScheduler_SpawnOnRetiredTaskFails(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	f := s.Spawn(root, func(context.Context) (any, error) {
		return nil, nil
	})
	<-f.Done()

	ran := false
	gc := s.Spawn(f.Task(), func(context.Context) (any, error) {
		ran = true
		return nil, nil
	})

	_, err := gc.Await(context.Background())
	assert.ErrorIs(t, err, relay.ErrTaskRetired)
	root.Join()
	assert.False(t, ran)
}

func TestScheduler_MaxConcurrent(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler(relay.WithMaxConcurrent(2))
	root := s.Root(context.Background())
	defer root.Cancel(nil)

	var active, peak atomic.Int32
	for i := 0; i < 8; i++ {
		s.Spawn(root, func(context.Context) (any, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return nil, nil
		})
	}

	root.Join()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestScheduler_AwaitInterruptedByCallerContext(t *testing.T) {
	t.Parallel()

	s := relay.NewScheduler()
	root := s.Root(context.Background())

	release := make(chan struct{})
	f := s.Spawn(root, func(context.Context) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Await(ctx)
	assert.Error(t, err)

	// The child keeps running; release it and retire the tree.
	close(release)
	root.Join()
	root.Cancel(nil)
}
