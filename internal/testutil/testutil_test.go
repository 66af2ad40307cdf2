package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesBuilder(t *testing.T) {
	t.Parallel()

	frames := Frames(T0, 40*time.Millisecond, 3, 8, 6)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, T0.Add(time.Duration(i)*40*time.Millisecond), f.Timestamp)
		assert.Equal(t, 8, f.Image.Width)
		assert.Equal(t, 6, f.Image.Height)
		assert.Len(t, f.Image.Pix, 8*6)
	}
}

func TestFramesDistinctBuffers(t *testing.T) {
	t.Parallel()

	frames := Frames(T0, time.Millisecond, 2, 4, 4)
	frames[0].Image.Pix[0] = 0xff
	assert.NotEqual(t, frames[0].Image.Pix[0], frames[1].Image.Pix[0])
}
