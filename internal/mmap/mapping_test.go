package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(8192)
	require.NoError(t, err)
	defer m.Close()

	data := m.Bytes()
	require.Len(t, data, 8192)
	assert.Equal(t, 8192, m.Size())

	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zero: %d", i, b)
		}
	}

	// Memory is writable
	data[0] = 0xAB
	data[8191] = 0xCD
	assert.Equal(t, byte(0xAB), m.Bytes()[0])
	assert.Equal(t, byte(0xCD), m.Bytes()[8191])
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapping_Advise(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	for _, p := range []AccessPattern{AccessDefault, AccessSequential, AccessRandom, AccessWillNeed} {
		assert.NoError(t, m.Advise(p))
	}

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
}

func TestMapping_CloseIdempotent(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
}
