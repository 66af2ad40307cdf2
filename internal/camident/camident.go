// Package camident resolves camera identities across the two input kinds:
// video files (named by configuration, container metadata or filename
// convention) and braidz archive cameras (named by id string, joined
// internally by camera number).
package camident

import (
	"regexp"
	"time"
)

// Kind discriminates the three identity shapes. The set is closed:
// a camera is known from a video file, from the archive, or from both.
type Kind int

const (
	KindVideo Kind = iota
	KindArchive
	KindBoth
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindArchive:
		return "archive"
	case KindBoth:
		return "both"
	}
	return "unknown"
}

// VideoCam is the video-file side of an identity.
type VideoCam struct {
	// FullPath is the path of the movie as given, including directories.
	FullPath string
	// Filename is the movie file name without directory.
	Filename string
	// CfgName is the camera name from the run configuration, if any.
	CfgName string
	// Title is the camera name embedded in container metadata, if any.
	Title string
	// CamFromFilename is the camera name extracted from the filename
	// convention, if the filename matched.
	CamFromFilename string
	// Frame0Time is the absolute start time of the recording.
	Frame0Time time.Time
}

// ArchiveCam is the braidz side of an identity.
type ArchiveCam struct {
	// CamID is the human-readable camera id string.
	CamID string
	// CamNum is the archive's integer join key for this camera.
	CamNum int
}

// CameraIdentity is a tagged union over the three identity shapes.
// Video is set for KindVideo and KindBoth; Archive for KindArchive and
// KindBoth.
type CameraIdentity struct {
	Kind    Kind
	Video   *VideoCam
	Archive *ArchiveCam
}

// movieRe extracts the raw camera name from the recording filename
// convention, e.g. "movie20211108_084523_Basler-22445994" -> "Basler-22445994".
var movieRe = regexp.MustCompile(`^movie\d{8}_\d{6}_(.*)$`)

// CamFromFilename returns the camera name encoded in a movie filename
// stem, or "" when the stem does not follow the convention.
func CamFromFilename(stem string) string {
	m := movieRe.FindStringSubmatch(stem)
	if m == nil {
		return ""
	}
	return m[1]
}

// BestName returns the single canonical display name for the camera.
// For video-involved identities the priority is configured name, then
// embedded title, then filename; archive-only identities use the id string.
func (c *CameraIdentity) BestName() string {
	switch c.Kind {
	case KindVideo, KindBoth:
		if c.Video.CfgName != "" {
			return c.Video.CfgName
		}
		if c.Video.Title != "" {
			return c.Video.Title
		}
		return c.Video.Filename
	default:
		return c.Archive.CamID
	}
}

// RawName returns the name used for matching against archive id strings:
// the embedded title if present, else the filename-derived name. Archive
// identities match on their id string. The second return reports whether
// any raw name exists.
func (c *CameraIdentity) RawName() (string, bool) {
	switch c.Kind {
	case KindVideo, KindBoth:
		if c.Video.Title != "" {
			return c.Video.Title, true
		}
		if c.Video.CamFromFilename != "" {
			return c.Video.CamFromFilename, true
		}
		return "", false
	default:
		return c.Archive.CamID, true
	}
}

// Frame0Time returns the recording start time for video-involved
// identities. Archive-only identities have no independent start time.
func (c *CameraIdentity) Frame0Time() (time.Time, bool) {
	if c.Kind == KindVideo || c.Kind == KindBoth {
		return c.Video.Frame0Time, true
	}
	return time.Time{}, false
}

// CamNum returns the archive join key, when the identity has one.
func (c *CameraIdentity) CamNum() (int, bool) {
	if c.Kind == KindArchive || c.Kind == KindBoth {
		return c.Archive.CamNum, true
	}
	return 0, false
}

// Resolve left-joins the video roster against the archive roster on exact,
// case-sensitive equality of the video raw name with the archive id
// string. Matched video cameras become KindBoth; unmatched video cameras
// are returned unchanged; archive cameras that matched no video camera
// are returned in unmatched, in input order. Resolve is pure: it never
// mutates its inputs and the same inputs yield the same outputs.
func Resolve(video []CameraIdentity, archive []ArchiveCam) (roster []CameraIdentity, unmatched []ArchiveCam) {
	roster = make([]CameraIdentity, len(video))
	copy(roster, video)

	for _, ac := range archive {
		matched := false
		for i := range roster {
			if roster[i].Kind != KindVideo {
				continue
			}
			raw, ok := roster[i].RawName()
			if !ok || raw != ac.CamID {
				continue
			}
			ac := ac
			roster[i] = CameraIdentity{
				Kind:    KindBoth,
				Video:   roster[i].Video,
				Archive: &ac,
			}
			matched = true
			break
		}
		if !matched {
			unmatched = append(unmatched, ac)
		}
	}
	return roster, unmatched
}
