package nibble

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NullIgnoresWrites(t *testing.T) {
	s := NewNull()
	s.Set(nil, 10, 7)
	assert.Equal(t, 0, s.Get(10))
	assert.False(t, s.IsDirty())
	assert.False(t, s.Publish())
	assert.True(t, s.IsNullVisible())
}

func TestStore_LazyAllocationAndPublish(t *testing.T) {
	pool := NewPool(4)
	s := NewUninitialized()

	s.Set(pool, 5, 0)
	require.True(t, s.IsUninitializedUpdating(), "writing zero must not allocate")

	s.Set(pool, 5, 9)
	require.True(t, s.IsInitializedUpdating())
	assert.Equal(t, 9, s.Get(5))
	assert.Equal(t, 0, s.GetVisible(5), "unpublished write leaked to readers")

	require.True(t, s.Publish())
	assert.Equal(t, 9, s.GetVisible(5))
	assert.True(t, s.IsInitializedVisible())
	assert.False(t, s.Publish(), "second publish without writes must be a no-op")
}

func TestStore_CopyOnFirstWriteAfterPublish(t *testing.T) {
	pool := NewPool(4)
	s := NewUninitialized()
	s.Set(pool, 0, 3)
	s.Publish()

	s.Set(pool, 0, 4)
	s.Set(pool, 1, 5)
	assert.Equal(t, 3, s.GetVisible(0))
	assert.Equal(t, 0, s.GetVisible(1))
	assert.Equal(t, 4, s.Get(0))

	s.Publish()
	assert.Equal(t, 4, s.GetVisible(0))
	assert.Equal(t, 5, s.GetVisible(1))
}

func TestStore_NibblePacking(t *testing.T) {
	s := NewUninitialized()
	for i := 0; i < 4096; i++ {
		s.Set(nil, i, i%16)
	}
	for i := 0; i < 4096; i++ {
		require.Equal(t, i%16, s.Get(i), "index %d", i)
	}
}

func TestStore_BulkTransitions(t *testing.T) {
	pool := NewPool(4)
	s := NewNull()

	s.SetFull(pool)
	assert.True(t, s.IsAllFull())
	assert.Equal(t, 15, s.Get(4095))

	s.SetZero(pool)
	assert.True(t, s.IsAllZero())
	assert.True(t, s.IsInitializedUpdating())

	s.SetUninitialized(pool)
	assert.True(t, s.IsAllZero())
	assert.Equal(t, 1, pool.Stats().Free, "private buffer should return to the pool")

	s.SetFull(pool)
	s.Publish()
	s.SetNull(pool)
	assert.Equal(t, 0, pool.Stats().Free, "published buffer must never be recycled")
	assert.Equal(t, 15, s.GetVisible(0))
	s.Publish()
	assert.Equal(t, 0, s.GetVisible(0))
	assert.True(t, s.IsNullVisible())
}

func TestStore_SetPanicsOnBadLevel(t *testing.T) {
	s := NewUninitialized()
	assert.Panics(t, func() { s.Set(nil, 0, 16) })
	assert.Panics(t, func() { NewInitialized(make([]byte, 100)) })
}

func TestStore_PersistedRoundTrip(t *testing.T) {
	s := NewUninitialized()
	for i := 0; i < 4096; i += 7 {
		s.Set(nil, i, (i/7)%16)
	}
	s.Publish()

	p := s.Save()
	text := p.EncodeText()
	back, err := DecodeText(p.State, text)
	require.NoError(t, err)

	r, err := FromPersisted(back)
	require.NoError(t, err)
	for i := 0; i < 4096; i++ {
		require.Equal(t, s.GetVisible(i), r.GetVisible(i), "index %d", i)
	}

	for _, st := range []State{Null, Uninitialized} {
		x, err := FromPersisted(Persisted{State: st})
		require.NoError(t, err)
		assert.Equal(t, st, x.VisibleState())
		assert.Equal(t, 0, x.GetVisible(100))
	}
}

func TestStore_RestoreRejectsCorruptPayload(t *testing.T) {
	s := NewNull()
	err := s.Restore(nil, Persisted{State: Initialized, Data: make([]byte, 17)})
	require.ErrorIs(t, err, ErrBadPayload)
	assert.True(t, s.IsNullVisible(), "failed restore must leave the store untouched")

	_, err = DecodeText(Initialized, "!!!")
	require.ErrorIs(t, err, ErrBadPayload)
	_, err = DecodeText(Null, "AAAA")
	require.ErrorIs(t, err, ErrBadPayload)
}

// Readers must only ever see whole published batches.
func TestStore_NoTearingUnderConcurrentPublish(t *testing.T) {
	s := NewUninitialized()
	pool := NewPool(8)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 4)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := s.Save()
				first := p.Level(0)
				for i := 1; i < 4096; i++ {
					if p.Level(i) != first {
						errs <- "torn snapshot"
						return
					}
				}
				v := s.GetVisible(2048)
				if v < last {
					errs <- "visible value went backwards"
					return
				}
				last = v
			}
		}()
	}

	for k := 1; k <= 15; k++ {
		for round := 0; round < 20; round++ {
			for i := 0; i < 4096; i++ {
				s.Set(pool, i, k)
			}
		}
		s.Publish()
	}
	close(stop)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
	assert.Equal(t, 15, s.GetVisible(4095))
}
