package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetWithTTLExpires(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.SetWithTTL("quote:x", []byte("103"), 100*time.Millisecond))

	v, ok, err := s.Get("quote:x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "103", string(v))

	time.Sleep(1200 * time.Millisecond)

	_, ok, err = s.Get("quote:x")
	require.NoError(t, err)
	assert.False(t, ok, "entry must be gone within ttl+2s")
}

func TestSetWithTTLHoldsForAtLeastTTL(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.SetWithTTL("k", []byte("v"), 500*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestIncrLinearizable(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	const workers = 50
	const perWorker = 20
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				_, _ = s.Incr("counter", 1)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	v, err := s.Incr("counter", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), v)
}

func TestSetOps(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.SAdd("watched", "SOL", "TON"))
	require.NoError(t, s.SAdd("watched", "SOL"))
	members, err := s.SMembers("watched")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SOL", "TON"}, members)

	require.NoError(t, s.SRem("watched", "SOL"))
	members, err = s.SMembers("watched")
	require.NoError(t, err)
	assert.Equal(t, []string{"TON"}, members)
}

func TestHashOps(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.HSet("trigger:SOL:USDT", "order-1", []byte(`{"trigger_price":"95"}`)))
	require.NoError(t, s.HSet("trigger:SOL:USDT", "order-2", []byte(`{"trigger_price":"110"}`)))

	v, ok, err := s.HGet("trigger:SOL:USDT", "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"trigger_price":"95"}`, string(v))

	all, err := s.HGetAll("trigger:SOL:USDT")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.HDel("trigger:SOL:USDT", "order-1"))
	all, err = s.HGetAll("trigger:SOL:USDT")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListOps(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	require.NoError(t, s.LPush("pairs", "SOL-USDT"))
	require.NoError(t, s.LPush("pairs", "TON-USDT"))

	values, err := s.LRange("pairs", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"TON-USDT", "SOL-USDT"}, values)

	v, ok, err := s.LPop("pairs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "TON-USDT", v)
}

func TestExistsAndDelete(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	ok, err := s.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetWithTTL("present", []byte("1"), 0))
	ok, err = s.Exists("present")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("present"))
	ok, err = s.Exists("present")
	require.NoError(t, err)
	assert.False(t, ok)
}
