package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NotNil(t, l)

	require.NoError(t, l.Release())

	// Reacquirable after release.
	l2, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, l2.Release())
}
