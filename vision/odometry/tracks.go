package odometry

import (
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Match is a feature correspondence between the previous image (Prev) and the current image (Curr).
// Feature ids persist across cycles: the CurrID of one cycle is the PrevID of the next.
type Match struct {
	PrevID int
	Prev   r2.Point
	CurrID int
	Curr   r2.Point
}

// Track is a feature followed over consecutive frames.
type Track struct {
	ID uuid.UUID
	// Pixels holds one observation per frame, oldest first.
	Pixels []r2.Point
	// LastFeature is the feature id of the newest observation.
	LastFeature int
	First       FrameHandle
	// Last is only set once the track is lost.
	Last FrameHandle

	refreshed bool
}

type associationStats struct {
	started    int
	extended   int
	capped     int
	duplicates int
}

// trackManager owns the live tracks and keeps the frame window's live-track counts in step with them.
type trackManager struct {
	window    *FrameWindow
	maxLength int
	tracks    []*Track
}

func newTrackManager(window *FrameWindow, maxLength int) *trackManager {
	return &trackManager{window: window, maxLength: maxLength}
}

// associate extends live tracks with this cycle's matches and starts new tracks at the newest frame
// for matches whose predecessor is not the newest observation of a live track.
func (m *trackManager) associate(matches []Match) (associationStats, error) {
	var stats associationStats
	byLastFeature := make(map[int]*Track, len(m.tracks))
	for _, tr := range m.tracks {
		byLastFeature[tr.LastFeature] = tr
	}

	newest := m.window.Newest()
	for _, match := range matches {
		tr := byLastFeature[match.PrevID]
		if tr != nil && tr.refreshed {
			stats.duplicates++
		}
		if tr == nil || tr.refreshed {
			if err := m.window.Retain(newest); err != nil {
				return stats, errors.Wrap(err, "cannot start track")
			}
			tr = &Track{
				ID:          uuid.New(),
				Pixels:      make([]r2.Point, 0, 2),
				LastFeature: match.PrevID,
				First:       newest,
			}
			tr.Pixels = append(tr.Pixels, match.Prev)
			m.tracks = append(m.tracks, tr)
			stats.started++
		} else if len(tr.Pixels) < m.maxLength {
			stats.extended++
		}

		if len(tr.Pixels) >= m.maxLength {
			stats.capped++
			continue
		}
		tr.Pixels = append(tr.Pixels, match.Curr)
		tr.LastFeature = match.CurrID
		tr.refreshed = true
	}
	return stats, nil
}

// sweep clears the refreshed flag of live tracks and removes every track that was not refreshed this cycle.
// Removed tracks get the newest frame as their last frame and release their first frame.
func (m *trackManager) sweep() ([]*Track, error) {
	var lost []*Track
	newest := m.window.Newest()
	kept := m.tracks[:0]
	for _, tr := range m.tracks {
		if tr.refreshed {
			tr.refreshed = false
			kept = append(kept, tr)
			continue
		}
		tr.Last = newest
		if err := m.window.Release(tr.First); err != nil {
			return nil, errors.Wrapf(err, "track %s", tr.ID)
		}
		lost = append(lost, tr)
	}
	for i := len(kept); i < len(m.tracks); i++ {
		m.tracks[i] = nil
	}
	m.tracks = kept
	return lost, nil
}

// live returns the number of live tracks.
func (m *trackManager) live() int {
	return len(m.tracks)
}

func (m *trackManager) reset() {
	m.tracks = nil
}
