package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetClearIsSet(t *testing.T) {
	m := New(96)

	assert.False(t, m.Any())
	m.Set(0)
	m.Set(31)
	m.Set(32)
	m.Set(95)

	assert.True(t, m.IsSet(0))
	assert.True(t, m.IsSet(31))
	assert.True(t, m.IsSet(32))
	assert.True(t, m.IsSet(95))
	assert.False(t, m.IsSet(1))
	assert.Equal(t, 4, m.Count())

	m.Clear(31)
	assert.False(t, m.IsSet(31))
	assert.Equal(t, 3, m.Count())
}

func TestOutOfRangeIgnored(t *testing.T) {
	m := New(16)
	m.Set(-1)
	m.Set(16)
	m.Set(100)
	assert.False(t, m.Any())
	assert.False(t, m.IsSet(-1))
	assert.False(t, m.IsSet(100))
}

func TestIterators(t *testing.T) {
	m := New(128)
	for _, bit := range []int32{3, 33, 64, 127} {
		m.Set(bit)
	}

	var got []int32
	for p := m.FirstSet(); p != InvalidID; p = m.NextSet(p) {
		got = append(got, p)
	}
	assert.Equal(t, []int32{3, 33, 64, 127}, got)

	assert.Equal(t, InvalidID, New(8).FirstSet())
	assert.Equal(t, InvalidID, m.NextSet(127))
}

func TestFirstUnsetPool(t *testing.T) {
	m := New(64)

	require.Equal(t, int32(0), m.SetFirstUnset())
	require.Equal(t, int32(1), m.SetFirstUnset())
	m.Clear(0)
	require.Equal(t, int32(0), m.SetFirstUnset())
	require.Equal(t, int32(2), m.SetFirstUnset())

	full := New(33)
	full.SetAll()
	assert.Equal(t, InvalidID, full.FirstUnset())
	full.Clear(32)
	assert.Equal(t, int32(32), full.FirstUnset())
}

func TestSetOperations(t *testing.T) {
	a := New(40)
	b := New(40)
	a.Set(1)
	a.Set(2)
	b.Set(2)
	b.Set(3)

	out := New(40)
	out.And(a, b)
	assert.Equal(t, []int32{2}, collect(out))

	out.Or(a, b)
	assert.Equal(t, []int32{1, 2, 3}, collect(out))

	out.Xor(a, b)
	assert.Equal(t, []int32{1, 3}, collect(out))

	out.AndNot(a, b)
	assert.Equal(t, []int32{1}, collect(out))

	out.Not(a)
	assert.False(t, out.IsSet(1))
	assert.True(t, out.IsSet(0))
	assert.True(t, out.IsSet(39))
	assert.Equal(t, 38, out.Count())
}

func TestEqualCopyZeroSetAll(t *testing.T) {
	a := New(48)
	b := New(48)
	a.Set(7)
	assert.False(t, a.Equal(b))

	b.Copy(a)
	assert.True(t, a.Equal(b))

	a.SetAll()
	assert.Equal(t, 48, a.Count())
	a.Zero()
	assert.False(t, a.Any())

	assert.False(t, a.Equal(New(32)))
}

func collect(m *Mask) []int32 {
	var out []int32
	for p := m.FirstSet(); p != InvalidID; p = m.NextSet(p) {
		out = append(out, p)
	}
	return out
}
