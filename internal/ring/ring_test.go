package ring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimPublish(t *testing.T, b *Buffer[int], v int) Sequence {
	t.Helper()
	seq, err := b.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Publish(seq, v))
	return seq
}

func TestNewRoundsCapacity(t *testing.T) {
	b, err := New[int](5)
	require.NoError(t, err)
	assert.Equal(t, 8, b.Capacity())

	b, err = New[int](4)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Capacity())
}

func TestNewInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, MaxCapacity + 1} {
		_, err := New[int](c)
		assert.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d", c)
	}
}

func TestClaimPublishRead(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		claimPublish(t, b, i*10)
	}
	assert.Equal(t, 3, b.Backlog())
	assert.Equal(t, 1, b.Remaining())

	bound, err := b.WaitFor(0)
	require.NoError(t, err)
	assert.Equal(t, Sequence(3), bound)

	for seq := Sequence(0); seq < bound; seq++ {
		v, err := b.Read(seq)
		require.NoError(t, err)
		assert.Equal(t, int(seq)*10, v)
		require.NoError(t, b.Release(seq))
	}
	assert.Equal(t, 0, b.Backlog())
	assert.Equal(t, 4, b.Remaining())
}

func TestReadUnpublished(t *testing.T) {
	b, err := New[int](2)
	require.NoError(t, err)

	_, err = b.Read(0)
	assert.ErrorIs(t, err, ErrUnpublished)

	seq, err := b.ClaimNext(context.Background())
	require.NoError(t, err)
	_, err = b.Read(seq)
	assert.ErrorIs(t, err, ErrUnpublished, "claimed but unpublished slot must not be readable")
}

func TestPublishOutOfOrder(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Publish(0, 1), ErrSequence, "unclaimed")

	_, err = b.ClaimNext(context.Background())
	require.NoError(t, err)
	second, err := b.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, b.Publish(second, 2), ErrSequence, "skips the first claim")
}

func TestReleaseOutOfOrder(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)
	claimPublish(t, b, 1)
	claimPublish(t, b, 2)

	assert.ErrorIs(t, b.Release(1), ErrSequence)
	require.NoError(t, b.Release(0))
	_, err = b.Read(0)
	assert.ErrorIs(t, err, ErrSequence)
}

func TestTryClaimWouldBlock(t *testing.T) {
	b, err := New[int](2)
	require.NoError(t, err)
	claimPublish(t, b, 1)
	claimPublish(t, b, 2)

	_, err = b.TryClaimNext()
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, b.Release(0))
	seq, err := b.TryClaimNext()
	require.NoError(t, err)
	assert.Equal(t, Sequence(2), seq)
}

func TestClaimBlocksWhenFull(t *testing.T) {
	b, err := New[int](2)
	require.NoError(t, err)
	claimPublish(t, b, 1)
	claimPublish(t, b, 2)

	claimed := make(chan Sequence, 1)
	go func() {
		seq, err := b.ClaimNext(context.Background())
		if err == nil {
			claimed <- seq
		}
	}()

	select {
	case <-claimed:
		t.Fatal("claim on a full ring should block")
	case <-time.After(50 * time.Millisecond):
	}

	// Full ring must not have overwritten the oldest slot.
	v, err := b.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, b.Release(0))

	select {
	case seq := <-claimed:
		assert.Equal(t, Sequence(2), seq)
	case <-time.After(time.Second):
		t.Fatal("claim should proceed after the reader released a slot")
	}
}

func TestClaimContextCancel(t *testing.T) {
	b, err := New[int](1)
	require.NoError(t, err)
	claimPublish(t, b, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = b.ClaimNext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseWakesBlockedProducer(t *testing.T) {
	b, err := New[int](1)
	require.NoError(t, err)
	claimPublish(t, b, 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.ClaimNext(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("close should wake a blocked producer")
	}
}

func TestCloseDrainsBeforeErrClosed(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)
	claimPublish(t, b, 7)
	claimPublish(t, b, 8)
	b.Close()
	b.Close()

	_, err = b.TryClaimNext()
	assert.ErrorIs(t, err, ErrClosed)

	bound, err := b.WaitFor(0)
	require.NoError(t, err)
	assert.Equal(t, Sequence(2), bound)
	require.NoError(t, b.Release(0))
	require.NoError(t, b.Release(1))

	_, err = b.WaitFor(2)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishClaimAfterClose(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)

	seq, err := b.ClaimNext(context.Background())
	require.NoError(t, err)
	b.Close()

	done := make(chan error, 1)
	go func() {
		_, err := b.WaitFor(0)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Publish(seq, 3))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader should see a claim published after close")
	}
}

// TestWrapAround pushes several multiples of the capacity through the ring.
func TestWrapAround(t *testing.T) {
	b, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		seq := claimPublish(t, b, i)
		bound, err := b.WaitFor(seq)
		require.NoError(t, err)
		assert.Equal(t, seq+1, bound)
		v, err := b.Read(seq)
		require.NoError(t, err)
		assert.Equal(t, i, v)
		require.NoError(t, b.Release(seq))
	}
	assert.Equal(t, Sequence(100), b.ReadSequence())
	assert.Equal(t, Sequence(100), b.Published())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	b, err := New[int](8)
	require.NoError(t, err)

	const total = 10000
	var mu sync.Mutex
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				mu.Lock()
				seq, err := b.ClaimNext(context.Background())
				if err == nil {
					err = b.Publish(seq, int(seq))
				}
				mu.Unlock()
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		b.Close()
	}()

	var next Sequence
	for {
		bound, err := b.WaitFor(next)
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			break
		}
		for ; next < bound; next++ {
			v, err := b.Read(next)
			require.NoError(t, err)
			require.Equal(t, int(next), v)
			require.NoError(t, b.Release(next))
		}
	}
	assert.Equal(t, Sequence(total), next)
}
