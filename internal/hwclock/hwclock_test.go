package hwclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{ tick uint32 }

func (f *fakeCounter) Now() uint32 { return f.tick }

func TestAllocate_AssignsDistinctChannels(t *testing.T) {
	r := NewRegistry(&fakeCounter{})
	a := r.Allocate(func(uint32) {})
	b := r.Allocate(func(uint32) {})
	assert.NotEqual(t, a, b)
}

func TestFire_LatchesCounterAndInvokesHandler(t *testing.T) {
	counter := &fakeCounter{tick: 42}
	r := NewRegistry(counter)
	var got uint32
	ch := r.Allocate(func(tick uint32) { got = tick })

	tick, err := r.Fire(ch)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), tick)
	assert.Equal(t, uint32(42), got)
}

func TestFire_UnknownChannelErrors(t *testing.T) {
	r := NewRegistry(&fakeCounter{})
	_, err := r.Fire(Channel(7))
	assert.Error(t, err)
}

func TestDeliver_UsesGivenTickNotCounter(t *testing.T) {
	counter := &fakeCounter{tick: 100}
	r := NewRegistry(counter)
	var got uint32
	ch := r.Allocate(func(tick uint32) { got = tick })

	require.NoError(t, r.Deliver(ch, 999))
	assert.Equal(t, uint32(999), got)
}

func TestDeliver_UnknownChannelErrors(t *testing.T) {
	r := NewRegistry(&fakeCounter{})
	err := r.Deliver(Channel(3), 1)
	assert.Error(t, err)
}

func TestGet_ReadsCounterDirectly(t *testing.T) {
	counter := &fakeCounter{tick: 7}
	r := NewRegistry(counter)
	assert.Equal(t, uint32(7), r.Get())
}

func TestSyntheticCounter_AdvanceOffsetsNow(t *testing.T) {
	c := NewSyntheticCounter(16_000_000)
	before := c.Now()
	c.Advance(1_000_000)
	after := c.Now()
	assert.GreaterOrEqual(t, int64(after)-int64(before), int64(1_000_000))
}
