package task

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lepak.sg/kannon/kerr"
)

func TestFromClosure(t *testing.T) {
	_, err := FromClosure("", func() {})
	assert.ErrorIs(t, err, kerr.ErrInvalidItemName)

	ran := false
	tk, err := FromClosure("greet", func() { ran = true })
	assert.NoError(t, err)
	assert.Equal(t, "greet", tk.Name())

	tk.Call()
	assert.True(t, ran)
}

func TestFromMethod(t *testing.T) {
	type counter struct{ n int }
	c := &counter{}

	tk, err := FromMethod("read", c, func(c *counter) { c.n++ })
	assert.NoError(t, err)

	tk.Call()
	tk.Call()
	assert.Equal(t, 2, c.n)
}

func TestFromMethodMut(t *testing.T) {
	type counter struct{ n int }
	c := &counter{}

	tk, err := FromMethodMut("incr", c, func(c *counter) { c.n += 5 })
	assert.NoError(t, err)

	tk.Call()
	assert.Equal(t, 5, c.n)
}

func TestNewEmpty(t *testing.T) {
	tk := NewEmpty()
	assert.Equal(t, emptyName, tk.Name())
	// must not panic
	tk.Call()
}

func TestHandle_CallAndReleased(t *testing.T) {
	calls := 0
	tk, err := FromClosure("work", func() { calls++ })
	assert.NoError(t, err)

	h := tk.Handle()
	assert.True(t, h.Alive())
	assert.True(t, h.Call())
	assert.Equal(t, 1, calls)

	tk = nil
	for i := 0; i < 10 && h.Alive(); i++ {
		runtime.GC()
	}

	assert.False(t, h.Alive())
	assert.False(t, h.Call())
	assert.Equal(t, 1, calls)
}

func TestHandle_NilSafe(t *testing.T) {
	var h *Handle
	assert.False(t, h.Alive())
	assert.False(t, h.Call())
	assert.Equal(t, "", h.Name())
}
