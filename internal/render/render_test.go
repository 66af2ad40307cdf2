package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/framesource"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/testutil"
)

func TestNewBlankTemplate(t *testing.T) {
	t.Parallel()

	p, err := NewBlank("Basler-22445994", 32, 24)
	require.NoError(t, err)
	assert.Equal(t, "Basler-22445994", p.BestName)
	assert.Equal(t, 32, p.Width)
	assert.Equal(t, 24, p.Height)

	cfg, err := png.DecodeConfig(bytes.NewReader(p.Frame0PNG))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)

	// Blank means all-zero pixels.
	for _, b := range p.Frame0.Pix {
		require.Zero(t, b)
	}
}

func oneCamMoment(rows []braidz.Data2DRow, im *framesource.Image) *merge.SyncedPictures {
	return &merge.SyncedPictures{
		Timestamp: testutil.T0,
		CameraPictures: []merge.PerCameraPicture{
			{Timestamp: testutil.T0, Image: im, Rows: rows},
		},
	}
}

func TestGatherSkipsNonFiniteRows(t *testing.T) {
	t.Parallel()

	tpl, err := NewBlank("cam", 8, 8)
	require.NoError(t, err)

	rows := []braidz.Data2DRow{
		{X: 1.5, Y: 2.5},
		{X: math.NaN(), Y: 3},
		{X: 4, Y: math.Inf(1)},
		{X: 5.5, Y: 6.5},
	}
	frames, err := Gather(oneCamMoment(rows, nil), []*PerCamRender{tpl})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	// The NaN and Inf rows are skipped; the remaining rows survive in order.
	assert.Equal(t, []Point{{X: 1.5, Y: 2.5}, {X: 5.5, Y: 6.5}}, frames[0].Points)
}

func TestGatherAttachesImage(t *testing.T) {
	t.Parallel()

	tpl, err := NewBlank("cam", 8, 8)
	require.NoError(t, err)

	im := framesource.BlankMono8(8, 8)
	im.Pix[0] = 42
	frames, err := Gather(oneCamMoment(nil, im), []*PerCamRender{tpl})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	require.NotNil(t, frames[0].Image)
	assert.NotEmpty(t, frames[0].PNG)
	assert.Equal(t, byte(42), frames[0].Image.Pix[0])
	assert.Equal(t, testutil.T0, frames[0].Timestamp)
}

func TestGatherNoImageLeavesTemplateFallback(t *testing.T) {
	t.Parallel()

	tpl, err := NewBlank("cam", 8, 8)
	require.NoError(t, err)

	frames, err := Gather(oneCamMoment(nil, nil), []*PerCamRender{tpl})
	require.NoError(t, err)
	assert.Nil(t, frames[0].Image)
	assert.Nil(t, frames[0].PNG)
	assert.Empty(t, frames[0].Points)
	assert.Same(t, tpl, frames[0].Template)
}

func TestGatherRosterMismatch(t *testing.T) {
	t.Parallel()

	tpl, err := NewBlank("cam", 8, 8)
	require.NoError(t, err)

	moment := &merge.SyncedPictures{Timestamp: time.Now()}
	_, err = Gather(moment, []*PerCamRender{tpl})
	assert.Error(t, err)
}
