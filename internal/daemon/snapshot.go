package daemon

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/playback"
)

// Record is the JSON form of an orchestrator snapshot written for other
// processes to read without a round-trip to the player
type Record struct {
	IsPlaying       bool      `json:"is_playing"`
	TrackName       string    `json:"track_name,omitempty"`
	ArtistName      string    `json:"artist_name,omitempty"`
	AlbumName       string    `json:"album_name,omitempty"`
	ArtworkURL      string    `json:"artwork_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	PositionSeconds int       `json:"position_seconds"`
	IsConnected     bool      `json:"is_connected"`
	Phase           string    `json:"phase"`
	Permission      string    `json:"permission"`
	PermissionError bool      `json:"permission_error"`
	LastError       string    `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewRecord captures snap at time at
func NewRecord(snap orchestrator.Snapshot, at time.Time) Record {
	r := Record{
		IsPlaying:       snap.Current.IsPlaying,
		TrackName:       snap.Current.TrackName,
		ArtistName:      snap.Current.ArtistName,
		AlbumName:       snap.Current.AlbumName,
		ArtworkURL:      snap.Current.Artwork(),
		DurationSeconds: snap.Current.DurationSeconds,
		PositionSeconds: snap.Current.PositionSeconds,
		IsConnected:     snap.Current.IsConnected,
		Phase:           snap.Phase.String(),
		Permission:      snap.PermissionStatus.String(),
		PermissionError: snap.HasPermissionError(),
		UpdatedAt:       at,
	}
	if snap.LastError != nil {
		r.LastError = snap.LastError.Error()
	}
	return r
}

// State rebuilds the playback state carried by r
func (r Record) State() playback.State {
	s := playback.State{
		IsPlaying:       r.IsPlaying,
		TrackName:       r.TrackName,
		ArtistName:      r.ArtistName,
		AlbumName:       r.AlbumName,
		DurationSeconds: r.DurationSeconds,
		PositionSeconds: r.PositionSeconds,
		IsConnected:     r.IsConnected,
	}
	if r.ArtworkURL != "" {
		if u, err := url.Parse(r.ArtworkURL); err == nil {
			s.ArtworkURL = u
		}
	}
	return s.Normalize()
}

// Stale reports whether r is older than maxAge at now
func (r Record) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.UpdatedAt) > maxAge
}

// sameContent compares everything except the timestamp
func (r Record) sameContent(o Record) bool {
	r.UpdatedAt = time.Time{}
	o.UpdatedAt = time.Time{}
	return r == o
}

// SnapshotFile persists the latest Record atomically
type SnapshotFile struct {
	mu       sync.Mutex
	filePath string
	last     *Record
}

// NewSnapshotFile creates a writer for path
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{filePath: path}
}

// Write persists r unless its content matches the last write. It reports
// whether the file was written.
func (f *SnapshotFile) Write(r Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.last != nil && f.last.sameContent(r) {
		return false, nil
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Write atomically via temp file + rename
	tmpPath := f.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, f.filePath); err != nil {
		return false, fmt.Errorf("failed to replace snapshot: %w", err)
	}

	f.last = &r
	return true, nil
}

// Remove deletes the snapshot file so readers stop trusting it
func (f *SnapshotFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = nil
	if err := os.Remove(f.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the Record at path
func ReadSnapshot(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return r, nil
}
