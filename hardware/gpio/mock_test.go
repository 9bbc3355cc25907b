package gpio

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock(t *testing.T) {
	t.Parallel()

	m := NewMock()
	require.NoError(t, m.SetDirection(1, Out))
	require.NoError(t, m.SetValue(1, true))
	v, err := m.Value(1)
	require.NoError(t, err)
	assert.True(t, v)
	m.Input[2] = true
	v, err = m.Value(2)
	require.NoError(t, err)
	assert.True(t, v)

	ops := m.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, "dir(1)=out", ops[0].String())
	assert.Equal(t, "set(1)=1", ops[1].String())
	assert.Equal(t, "get(2)=1", ops[3].String())

	m.Reset()
	m.Fail = func(op Op) error {
		if op.Kind == OpSet {
			return errors.New("denied")
		}
		return nil
	}
	assert.EqualError(t, m.SetValue(1, false), "denied")
	assert.True(t, m.Level(1), "failed op must not change state")
	assert.Empty(t, m.Ops())
}
