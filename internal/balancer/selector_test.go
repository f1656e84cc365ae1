package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velox-proxy/internal/models"
)

func testPool() []models.Target {
	return []models.Target{
		{Address: "a", Port: 1, Weight: 1},
		{Address: "b", Port: 2, Weight: 1},
		{Address: "c", Port: 3, Weight: 1},
	}
}

func TestSelect_EmptyPool(t *testing.T) {
	s := New()

	_, err := s.Select(nil, models.StrategyRoundRobin, 0, "1.2.3.4")
	assert.ErrorIs(t, err, ErrNoUpstream)

	_, err = s.Select([]models.Target{}, models.StrategyRandom, 0, "1.2.3.4")
	assert.ErrorIs(t, err, ErrNoUpstream)
}

func TestSelect_RoundRobin(t *testing.T) {
	s := NewWithWorkerID(0)
	pool := testPool()

	t.Run("walks the pool by sequence", func(t *testing.T) {
		for seq := uint64(0); seq < 6; seq++ {
			target, err := s.Select(pool, models.StrategyRoundRobin, seq, "")
			require.NoError(t, err)
			assert.Equal(t, pool[seq%3], target)
		}
	})

	t.Run("worker id offsets the walk", func(t *testing.T) {
		offset := NewWithWorkerID(1)
		target, err := offset.Select(pool, models.StrategyRoundRobin, 0, "")
		require.NoError(t, err)
		assert.Equal(t, pool[1], target)
	})

	t.Run("unknown strategy defaults to round-robin", func(t *testing.T) {
		target, err := s.Select(pool, "bogus", 2, "")
		require.NoError(t, err)
		assert.Equal(t, pool[2], target)

		target, err = s.Select(pool, "", 2, "")
		require.NoError(t, err)
		assert.Equal(t, pool[2], target)
	})

	t.Run("least_conn maps to round-robin", func(t *testing.T) {
		target, err := s.Select(pool, models.StrategyLeastConn, 1, "")
		require.NoError(t, err)
		assert.Equal(t, pool[1], target)
	})
}

func TestSelect_Random(t *testing.T) {
	s := New()
	pool := testPool()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		target, err := s.Select(pool, models.StrategyRandom, 0, "")
		require.NoError(t, err)
		seen[target.Address] = true
	}

	// Every selection must land inside the pool; over enough draws the
	// spread should touch more than one target.
	for addr := range seen {
		assert.Contains(t, []string{"a", "b", "c"}, addr)
	}
	assert.Greater(t, len(seen), 1)
}

func TestSelect_IPHash(t *testing.T) {
	s := New()
	pool := testPool()

	t.Run("same client same target", func(t *testing.T) {
		first, err := s.Select(pool, models.StrategyIPHash, 0, "203.0.113.7")
		require.NoError(t, err)
		second, err := s.Select(pool, models.StrategyIPHash, 99, "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("reordering the pool shifts the mapping", func(t *testing.T) {
		// Find an IP whose hash index is not 1, so swapping pool[0] and
		// pool[2] is guaranteed to change the selected target.
		ip := "203.0.113.7"
		reversed := []models.Target{pool[2], pool[1], pool[0]}

		first, err := s.Select(pool, models.StrategyIPHash, 0, ip)
		require.NoError(t, err)
		second, err := s.Select(reversed, models.StrategyIPHash, 0, ip)
		require.NoError(t, err)

		if first.Address != "b" {
			assert.NotEqual(t, first, second)
		}
	})

	t.Run("missing client ip uses the loopback default", func(t *testing.T) {
		withDefault, err := s.Select(pool, models.StrategyIPHash, 0, "")
		require.NoError(t, err)
		explicit, err := s.Select(pool, models.StrategyIPHash, 0, "127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, explicit, withDefault)
	})
}
