package output

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/retrack.video/internal/braidz"
	"github.com/banshee-data/retrack.video/internal/merge"
	"github.com/banshee-data/retrack.video/internal/render"
)

// ArchiveSink persists the reconstructed stream as a SQLite database:
// one run row, the camera roster, one row per moment and one row per
// accepted 2D point. Each run is tagged with a fresh run id so databases
// can be appended to across runs.
type ArchiveSink struct {
	path  string
	db    *sql.DB
	runID string
}

// NewArchiveSink opens (or creates) the destination database and records
// the run and its camera roster.
func NewArchiveSink(path string, p Params) (*ArchiveSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive output %s: %w", path, err)
	}
	s := &ArchiveSink{path: path, db: db, runID: uuid.NewString()}
	if err := s.init(p); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive output %s: %w", path, err)
	}
	return s, nil
}

func (s *ArchiveSink) init(p Params) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT PRIMARY KEY,
			created_at   TIMESTAMP,
			num_cameras  INTEGER,
			metadata     BLOB
		);
		CREATE TABLE IF NOT EXISTS cameras (
			run_id       TEXT,
			position     INTEGER,
			name         TEXT,
			camn         INTEGER,
			width        INTEGER,
			height       INTEGER
		);
		CREATE TABLE IF NOT EXISTS moments (
			run_id             TEXT,
			frame_idx          INTEGER,
			timestamp          DOUBLE,
			trigger_timestamp  DOUBLE
		);
		CREATE TABLE IF NOT EXISTS points (
			run_id     TEXT,
			frame_idx  INTEGER,
			position   INTEGER,
			camn       INTEGER,
			timestamp  DOUBLE,
			x          DOUBLE,
			y          DOUBLE
		);
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO runs (run_id, created_at, num_cameras, metadata) VALUES (?, ?, ?, ?)`,
		s.runID, time.Now().UTC().Format(time.RFC3339), len(p.Cameras), p.TrackingMetadata)
	if err != nil {
		return err
	}

	for i, cam := range p.Cameras {
		camn := sql.NullInt64{}
		if cam.HasCamNum {
			camn = sql.NullInt64{Int64: int64(cam.CamNum), Valid: true}
		}
		var w, h int
		if i < len(p.Templates) {
			w, h = p.Templates[i].Width, p.Templates[i].Height
		}
		_, err = s.db.Exec(`INSERT INTO cameras (run_id, position, name, camn, width, height) VALUES (?, ?, ?, ?, ?, ?)`,
			s.runID, i, cam.Name, camn, w, h)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ArchiveSink) Path() string { return s.path }

func (s *ArchiveSink) WriteMoment(idx int, moment *merge.SyncedPictures, frames []render.PerCamRenderFrame) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("archive output %s: %w", s.path, err)
	}
	defer tx.Rollback()

	trigger := sql.NullFloat64{}
	if moment.Braidz != nil && !moment.Braidz.TriggerTimestamp.IsZero() {
		trigger = sql.NullFloat64{Float64: braidz.EpochFromTime(moment.Braidz.TriggerTimestamp), Valid: true}
	}
	if _, err := tx.Exec(`INSERT INTO moments (run_id, frame_idx, timestamp, trigger_timestamp) VALUES (?, ?, ?, ?)`,
		s.runID, idx, braidz.EpochFromTime(moment.Timestamp), trigger); err != nil {
		return fmt.Errorf("archive output %s: %w", s.path, err)
	}

	for pos, frame := range frames {
		camn := sql.NullInt64{}
		if pos < len(moment.CameraPictures) {
			if rows := moment.CameraPictures[pos].Rows; len(rows) > 0 {
				camn = sql.NullInt64{Int64: int64(rows[0].CamNum), Valid: true}
			}
		}
		for _, pt := range frame.Points {
			if _, err := tx.Exec(`INSERT INTO points (run_id, frame_idx, position, camn, timestamp, x, y) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.runID, idx, pos, camn, braidz.EpochFromTime(frame.Timestamp), pt.X, pt.Y); err != nil {
				return fmt.Errorf("archive output %s: %w", s.path, err)
			}
		}
	}
	return tx.Commit()
}

func (s *ArchiveSink) Close() error { return s.db.Close() }
