package peer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := ID("peer-a")

	require.True(t, r.Add(Info{ID: id, Addr: "127.0.0.1:9000"}))
	require.False(t, r.Add(Info{ID: id}))
	require.Equal(t, 1, r.Len())

	info, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:9000", info.Addr)
}

func TestRegistryRemoveAndContains(t *testing.T) {
	r := NewRegistry()
	id := ID("peer-a")

	require.False(t, r.Contains(id))
	r.Add(Info{ID: id})
	require.True(t, r.Contains(id))

	require.True(t, r.Remove(id))
	require.False(t, r.Remove(id))
	require.False(t, r.Contains(id))
	require.Empty(t, r.List())
}

func TestRegistryTouchLastWriterWins(t *testing.T) {
	r := NewRegistry()
	id := ID("peer-a")
	r.Add(Info{ID: id})

	first := time.Now().Add(time.Minute)
	second := time.Now().Add(-time.Minute)
	r.Touch(id, first)
	r.Touch(id, second)

	info, _ := r.Get(id)
	require.Equal(t, second, info.LastSeen)

	stale := r.Stale(time.Now())
	require.Equal(t, []ID{id}, stale)

	r.Touch(ID("unknown"), time.Now())
	require.False(t, r.Contains(ID("unknown")))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	numWorkers := 16
	numPeers := 100

	wg := new(sync.WaitGroup)
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < numPeers; i++ {
				id := ID(fmt.Sprintf("peer-%d", i))
				r.Add(Info{ID: id})
				r.Touch(id, time.Now())
				_ = r.List()
				if w%2 == 0 {
					r.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()

	require.LessOrEqual(t, r.Len(), numPeers)
	for _, id := range r.List() {
		require.True(t, r.Contains(id))
	}
}

func TestIDEncoding(t *testing.T) {
	id := ID([]byte{0x12, 0x20, 0xaa, 0xbb, 0xcc})

	decoded, err := Decode(id.String())
	require.NoError(t, err)
	require.Equal(t, id, decoded)

	_, err = Decode("")
	require.ErrorIs(t, err, ErrInvalidID)

	_, err = Decode("0OIl")
	require.ErrorIs(t, err, ErrInvalidID)
}
