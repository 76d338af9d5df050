package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	t.Run("deterministic for identical input", func(t *testing.T) {
		a := Compute(Genesis, []byte(`{"consent_id":"c1"}`))
		b := Compute(Genesis, []byte(`{"consent_id":"c1"}`))
		assert.Equal(t, a, b)
	})

	t.Run("sensitive to every byte of content", func(t *testing.T) {
		a := Compute(Genesis, []byte(`{"consent_id":"c1"}`))
		b := Compute(Genesis, []byte(`{"consent_id":"c2"}`))
		assert.NotEqual(t, a, b)
	})

	t.Run("sensitive to previous hash", func(t *testing.T) {
		content := []byte(`{"consent_id":"c1"}`)
		a := Compute(Genesis, content)
		b := Compute(a, content)
		assert.NotEqual(t, a, b)
	})

	t.Run("output is well formed", func(t *testing.T) {
		assert.True(t, IsWellFormed(Compute(Genesis, []byte("x"))))
	})
}

func TestGenesis(t *testing.T) {
	assert.Len(t, Genesis, 64)
	assert.True(t, IsWellFormed(Genesis))
}

func TestIsWellFormed(t *testing.T) {
	assert.False(t, IsWellFormed(""))
	assert.False(t, IsWellFormed("deadbeef"))
	assert.False(t, IsWellFormed("zz00000000000000000000000000000000000000000000000000000000000000"))
}
