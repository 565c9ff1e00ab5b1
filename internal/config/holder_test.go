package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHolder(t *testing.T) {
	cfg := &Resolved{ListenAddr: ":3000"}
	h := NewHolder(cfg, "/etc/edge-datahub/config.toml")

	require.NotNil(t, h)
	assert.Same(t, cfg, h.Config())
	assert.Equal(t, "/etc/edge-datahub/config.toml", h.Path())
}

func TestHolder_UpdateReturnsPrevious(t *testing.T) {
	first := &Resolved{LogLevel: "info"}
	h := NewHolder(first, "/tmp/config.toml")

	second := &Resolved{LogLevel: "debug"}
	prev := h.Update(second)

	assert.Same(t, first, prev)
	assert.Same(t, second, h.Config())
}

func TestHolder_ConcurrentReadWrite(t *testing.T) {
	h := NewHolder(&Resolved{}, "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				assert.NotNil(t, h.Config())
				_ = h.Path()
			}
		}()
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				h.Update(&Resolved{BatchSize: 10})
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 10, h.Config().BatchSize)
}
