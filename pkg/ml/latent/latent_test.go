package latent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	for _, dims := range [][3]int{{1, 1, 1}, {4, 3, 100}, {MaxSamples, 2, 8}} {
		n, b, d := dims[0], dims[1], dims[2]
		first, err := Sample(42, n, b, d)
		require.NoError(t, err)
		second, err := Sample(42, n, b, d)
		require.NoError(t, err)
		require.Equal(t, first, second, "same seed must give the same latent vectors")

		require.Len(t, first, n)
		for ii := range n {
			require.Len(t, first[ii], b)
			for row := range b {
				require.Len(t, first[ii][row], d)
				assert.Equal(t, first[ii][0], first[ii][row], "rows of a batch must share the latent vector")
				for _, v := range first[ii][row] {
					assert.GreaterOrEqual(t, v, float32(-1))
					assert.LessOrEqual(t, v, float32(1))
				}
			}
		}
	}
}

func TestSampleDifferentSeedsAndSamples(t *testing.T) {
	a, err := Sample(1, 2, 1, 16)
	require.NoError(t, err)
	b, err := Sample(2, 2, 1, 16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a[0], a[1], "different samples should have different vectors")
}

func TestSampleInvalid(t *testing.T) {
	_, err := Sample(0, 0, 1, 1)
	assert.Error(t, err)
	_, err = Sample(0, 1, 1, -1)
	assert.Error(t, err)
}

func TestBroadcastCopies(t *testing.T) {
	v := []float32{1, 2}
	rows := Broadcast(v, 3)
	require.Len(t, rows, 3)
	rows[0][0] = 7
	assert.Equal(t, float32(1), rows[1][0], "rows must not share storage")
	assert.Equal(t, float32(1), v[0])
}
