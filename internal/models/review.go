package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	TimelineIntegrityEvent = "integrity_event"
	TimelineSnapshot       = "snapshot"
)

type TimelineEntry struct {
	Kind      string        `json:"kind"`
	ID        uuid.UUID     `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	EventType IntegrityKind `json:"event_type,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	Flagged   bool          `json:"flagged,omitempty"`
}

type SessionTimeline struct {
	Session          *TestSession          `json:"session"`
	Entries          []TimelineEntry       `json:"entries"`
	EventCounts      map[IntegrityKind]int `json:"event_counts"`
	SnapshotCount    int                   `json:"snapshot_count"`
	FlaggedSnapshots int                   `json:"flagged_snapshots"`
}

// BuildTimeline merges events and snapshots ordered by client timestamp. Arrival
// order is not meaningful; ties keep events before snapshots.
func BuildTimeline(session *TestSession, events []*IntegrityEvent, snapshots []*Snapshot) *SessionTimeline {
	t := &SessionTimeline{
		Session:     session,
		Entries:     make([]TimelineEntry, 0, len(events)+len(snapshots)),
		EventCounts: make(map[IntegrityKind]int),
	}

	for _, e := range events {
		t.Entries = append(t.Entries, TimelineEntry{
			Kind:      TimelineIntegrityEvent,
			ID:        e.ID,
			Timestamp: e.Timestamp,
			EventType: e.Kind,
		})
		t.EventCounts[e.Kind]++
	}
	for _, s := range snapshots {
		t.Entries = append(t.Entries, TimelineEntry{
			Kind:      TimelineSnapshot,
			ID:        s.ID,
			Timestamp: s.Timestamp,
			ImageURL:  s.ImageURL,
			Flagged:   s.Flagged,
		})
		t.SnapshotCount++
		if s.Flagged {
			t.FlaggedSnapshots++
		}
	}

	sort.SliceStable(t.Entries, func(i, j int) bool {
		return t.Entries[i].Timestamp.Before(t.Entries[j].Timestamp)
	})
	return t
}
