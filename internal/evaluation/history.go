package evaluation

import (
	"fmt"
	"time"

	id "amparo/pkg/domain"
)

// noteTruncateLimit bounds note text inside diff entries. The truncation is
// lossy on purpose; the live evaluation keeps the full text.
const noteTruncateLimit = 100

// FieldChange is one scalar field's before/after pair in a history entry.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// CriterionChange records a satisfied-flag flip for one linked criterion.
type CriterionChange struct {
	CriterionID id.CriterionID `json:"criterion_id"`
	Description string         `json:"description"`
	Before      bool           `json:"before"`
	After       bool           `json:"after"`
}

// HistoryEntry is one append-only audit record of an edit to a finalized
// evaluation.
type HistoryEntry struct {
	ID               id.HistoryID
	EvaluationID     id.EvaluationID
	EditedBy         id.ReviewerID
	Justification    string
	FieldChanges     []FieldChange
	CriterionChanges []CriterionChange
	CreatedAt        time.Time
}

// SnapshotLink is one criterion's state inside a snapshot.
type SnapshotLink struct {
	Satisfied   bool
	Description string
}

// Snapshot is a point-in-time capture of the auditable evaluation state.
type Snapshot struct {
	Status Status
	Score  int
	Notes  string
	Links  map[id.CriterionID]SnapshotLink
}

// CaptureState snapshots the evaluation and its current links. Criterion
// descriptions ride along so later diffs can name what changed.
func CaptureState(e *Evaluation, links []*CriterionLink, descriptions map[id.CriterionID]string) Snapshot {
	snapshot := Snapshot{
		Status: e.Status,
		Score:  e.Score,
		Notes:  e.Notes,
		Links:  make(map[id.CriterionID]SnapshotLink, len(links)),
	}
	for _, link := range links {
		snapshot.Links[link.CriterionID] = SnapshotLink{
			Satisfied:   link.Satisfied,
			Description: descriptions[link.CriterionID],
		}
	}
	return snapshot
}

// RecordEdit diffs the prior snapshot against the evaluation's live state
// and builds a history entry. Returns nil when nothing differs; history
// entries exist only for actual edits.
func RecordEdit(e *Evaluation, prior Snapshot, links []*CriterionLink, descriptions map[id.CriterionID]string, editor id.ReviewerID, justification string, now time.Time) *HistoryEntry {
	var fieldChanges []FieldChange
	if prior.Status != e.Status {
		fieldChanges = append(fieldChanges, FieldChange{
			Field:  "status",
			Before: string(prior.Status),
			After:  string(e.Status),
		})
	}
	if prior.Score != e.Score {
		fieldChanges = append(fieldChanges, FieldChange{
			Field:  "score",
			Before: fmt.Sprintf("%d", prior.Score),
			After:  fmt.Sprintf("%d", e.Score),
		})
	}
	if prior.Notes != e.Notes {
		fieldChanges = append(fieldChanges, FieldChange{
			Field:  "notes",
			Before: truncateNote(prior.Notes),
			After:  truncateNote(e.Notes),
		})
	}

	var criterionChanges []CriterionChange
	for _, link := range links {
		before, existed := prior.Links[link.CriterionID]
		if !existed || before.Satisfied == link.Satisfied {
			continue
		}
		criterionChanges = append(criterionChanges, CriterionChange{
			CriterionID: link.CriterionID,
			Description: descriptions[link.CriterionID],
			Before:      before.Satisfied,
			After:       link.Satisfied,
		})
	}

	if len(fieldChanges) == 0 && len(criterionChanges) == 0 {
		return nil
	}
	return &HistoryEntry{
		ID:               id.NewHistoryID(),
		EvaluationID:     e.ID,
		EditedBy:         editor,
		Justification:    justification,
		FieldChanges:     fieldChanges,
		CriterionChanges: criterionChanges,
		CreatedAt:        now,
	}
}

func truncateNote(note string) string {
	runes := []rune(note)
	if len(runes) <= noteTruncateLimit {
		return note
	}
	return string(runes[:noteTruncateLimit])
}
