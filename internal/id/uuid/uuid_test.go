package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewIDIsUniqueV7(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	parsed, err := Parse(first)
	require.NoError(t, err)
	assert.EqualValues(t, 7, parsed.Version())
}

func TestRunIDsAreTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	a, err := gen.NewRunID()
	require.NoError(t, err)
	b, err := gen.NewRunID()
	require.NoError(t, err)
	assert.Less(t, a.String(), b.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse("not-a-uuid")
	require.Error(t, err)
}
