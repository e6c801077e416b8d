package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObfuscatedTicketAge(t *testing.T) {
	now := time.Now()
	sess := &Session{
		TicketReceived: now.Add(-10 * time.Second),
		TicketAgeAdd:   0x11223344,
	}

	got := sess.ObfuscatedTicketAge(now)
	wantAgeSeconds := int64(9) // 10s elapsed, minus the 1s clock-truncation guard
	wantAgeMS := uint64(wantAgeSeconds) * 1000
	want := uint32((wantAgeMS + uint64(sess.TicketAgeAdd)) & 0xFFFFFFFF)

	require.Equal(t, want, got)
}

func TestObfuscatedTicketAgeZeroTicket(t *testing.T) {
	sess := &Session{}
	require.Equal(t, uint32(0), sess.ObfuscatedTicketAge(time.Now()))
}

func TestStorePutGetDelete(t *testing.T) {
	store := NewStore()
	_, ok := store.Get("example.com:443")
	require.False(t, ok)

	sess := &Session{Endpoint: "example.com:443"}
	store.Put("example.com:443", sess)

	got, ok := store.Get("example.com:443")
	require.True(t, ok)
	require.Same(t, sess, got)

	store.Delete("example.com:443")
	_, ok = store.Get("example.com:443")
	require.False(t, ok)
}

func TestStorePutReplacesPriorTicket(t *testing.T) {
	store := NewStore()
	store.Put("h", &Session{Ticket: []byte("first")})
	store.Put("h", &Session{Ticket: []byte("second")})

	got, _ := store.Get("h")
	require.Equal(t, []byte("second"), got.Ticket)
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	store := NewStore()
	var loadCount int32

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]*Session, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			sess, err := store.GetOrLoad("h", func() (*Session, error) {
				atomic.AddInt32(&loadCount, 1)
				time.Sleep(5 * time.Millisecond)
				return &Session{Endpoint: "h"}, nil
			})
			require.NoError(t, err)
			results[i] = sess
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&loadCount))
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}

func TestGetOrLoadPropagatesError(t *testing.T) {
	store := NewStore()
	_, err := store.GetOrLoad("h", func() (*Session, error) {
		return nil, errors.New("no ticket on disk")
	})
	require.Error(t, err)
}
