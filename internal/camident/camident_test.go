package camident

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoIdent(filename, cfgName, title string) CameraIdentity {
	stem := filename
	if i := len(filename); i > 4 && filename[i-4] == '.' {
		stem = filename[:i-4]
	}
	return CameraIdentity{
		Kind: KindVideo,
		Video: &VideoCam{
			FullPath:        "/data/" + filename,
			Filename:        filename,
			CfgName:         cfgName,
			Title:           title,
			CamFromFilename: CamFromFilename(stem),
			Frame0Time:      time.Date(2021, 11, 8, 8, 45, 23, 0, time.UTC),
		},
	}
}

func TestCamFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stem string
		want string
	}{
		{"movie20211108_084523_Basler-22445994", "Basler-22445994"},
		{"movie20211108_084610_CamB", "CamB"},
		{"movie2021_084523_CamA", ""},   // date too short
		{"recording20211108_084523", ""}, // wrong prefix
		{"movie20211108_084523_", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CamFromFilename(tc.stem), "stem %q", tc.stem)
	}
}

func TestBestNamePriority(t *testing.T) {
	t.Parallel()

	c := videoIdent("movie20211108_084523_CamA.mp4", "configured", "embedded")
	assert.Equal(t, "configured", c.BestName())

	c = videoIdent("movie20211108_084523_CamA.mp4", "", "embedded")
	assert.Equal(t, "embedded", c.BestName())

	c = videoIdent("movie20211108_084523_CamA.mp4", "", "")
	assert.Equal(t, "movie20211108_084523_CamA.mp4", c.BestName())

	a := CameraIdentity{Kind: KindArchive, Archive: &ArchiveCam{CamID: "Basler-22445994", CamNum: 3}}
	assert.Equal(t, "Basler-22445994", a.BestName())
}

func TestRawNamePrefersTitle(t *testing.T) {
	t.Parallel()

	c := videoIdent("movie20211108_084523_CamA.mp4", "cfg", "TitleName")
	raw, ok := c.RawName()
	require.True(t, ok)
	assert.Equal(t, "TitleName", raw)

	c = videoIdent("movie20211108_084523_CamA.mp4", "cfg", "")
	raw, ok = c.RawName()
	require.True(t, ok)
	assert.Equal(t, "CamA", raw)

	c = videoIdent("plain.mp4", "", "")
	_, ok = c.RawName()
	assert.False(t, ok)
}

func TestResolveExactMatchBecomesBoth(t *testing.T) {
	t.Parallel()

	// One video file whose filename-derived name matches the archive id
	// string exactly: the resolver must produce a single both-kind
	// identity, not two entries.
	video := []CameraIdentity{videoIdent("movie20211108_084523_Basler-22445994.mp4", "", "")}
	archive := []ArchiveCam{{CamID: "Basler-22445994", CamNum: 5}}

	roster, unmatched := Resolve(video, archive)
	require.Len(t, roster, 1)
	assert.Empty(t, unmatched)
	assert.Equal(t, KindBoth, roster[0].Kind)

	camn, ok := roster[0].CamNum()
	require.True(t, ok)
	assert.Equal(t, 5, camn)
	assert.Equal(t, "movie20211108_084523_Basler-22445994.mp4", roster[0].BestName())
}

func TestResolveIsCaseSensitive(t *testing.T) {
	t.Parallel()

	video := []CameraIdentity{videoIdent("movie20211108_084523_cama.mp4", "", "")}
	archive := []ArchiveCam{{CamID: "CamA", CamNum: 1}}

	roster, unmatched := Resolve(video, archive)
	require.Len(t, roster, 1)
	assert.Equal(t, KindVideo, roster[0].Kind)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "CamA", unmatched[0].CamID)
}

func TestResolveIsPure(t *testing.T) {
	t.Parallel()

	video := []CameraIdentity{
		videoIdent("movie20211108_084523_CamA.mp4", "", ""),
		videoIdent("movie20211108_084610_CamB.mp4", "", ""),
	}
	archive := []ArchiveCam{
		{CamID: "CamA", CamNum: 1},
		{CamID: "CamC", CamNum: 3},
	}

	r1, u1 := Resolve(video, archive)
	r2, u2 := Resolve(video, archive)

	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("resolve not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(u1, u2); diff != "" {
		t.Errorf("unmatched not deterministic (-first +second):\n%s", diff)
	}

	// Inputs are not mutated.
	assert.Equal(t, KindVideo, video[0].Kind)
	require.Len(t, r1, 2)
	assert.Equal(t, KindBoth, r1[0].Kind)
	assert.Equal(t, KindVideo, r1[1].Kind)
	require.Len(t, u1, 1)
	assert.Equal(t, "CamC", u1[0].CamID)
}

func TestResolveEmptyInputs(t *testing.T) {
	t.Parallel()

	roster, unmatched := Resolve(nil, nil)
	assert.Empty(t, roster)
	assert.Empty(t, unmatched)

	// Archive only: everything lands in unmatched, to become
	// archive-only sources upstream.
	_, unmatched = Resolve(nil, []ArchiveCam{{CamID: "a", CamNum: 0}, {CamID: "b", CamNum: 1}})
	assert.Len(t, unmatched, 2)
}
