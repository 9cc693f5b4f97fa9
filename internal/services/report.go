package services

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

const (
	reportSummarySheet   = "Summary"
	reportEventsSheet    = "Integrity Events"
	reportSnapshotsSheet = "Snapshots"
)

// BuildIntegrityReport renders a session timeline as an xlsx workbook.
func BuildIntegrityReport(tl *models.SessionTimeline, generatedAt time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", reportSummarySheet)
	if _, err := f.NewSheet(reportEventsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(reportSnapshotsSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := writeSummarySheet(f, tl, generatedAt, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeEventsSheet(f, tl, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to create events sheet: %w", err)
	}
	if err := writeSnapshotsSheet(f, tl, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to create snapshots sheet: %w", err)
	}

	return f.WriteToBuffer()
}

func writeSummarySheet(f *excelize.File, tl *models.SessionTimeline, generatedAt time.Time, headerStyle int) error {
	sheet := reportSummarySheet
	f.SetColWidth(sheet, "A", "A", 28)
	f.SetColWidth(sheet, "B", "B", 48)

	f.SetCellValue(sheet, "A1", "Proctoring Report")
	f.SetCellStyle(sheet, "A1", "B1", headerStyle)
	f.MergeCell(sheet, "A1", "B1")

	rows := [][]interface{}{
		{"Generated:", generatedAt.UTC().Format(time.RFC3339)},
	}
	if s := tl.Session; s != nil {
		rows = append(rows,
			[]interface{}{"Session ID:", s.ID.String()},
			[]interface{}{"Status:", string(s.Status)},
			[]interface{}{"Started:", s.StartTime.UTC().Format(time.RFC3339)},
		)
		if s.Problem != nil {
			rows = append(rows,
				[]interface{}{"Problem:", s.Problem.Title},
				[]interface{}{"Time limit (minutes):", s.Problem.TimeLimitMinutes},
			)
		}
		if s.EndTime != nil {
			rows = append(rows, []interface{}{"Submitted:", s.EndTime.UTC().Format(time.RFC3339)})
		}
		rows = append(rows, []interface{}{"Submitted late:", s.SubmittedLate})
	}
	rows = append(rows,
		[]interface{}{"Snapshots:", tl.SnapshotCount},
		[]interface{}{"Flagged snapshots:", tl.FlaggedSnapshots},
	)

	kinds := make([]string, 0, len(tl.EventCounts))
	for k := range tl.EventCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, []interface{}{"Events (" + k + "):", tl.EventCounts[models.IntegrityKind(k)]})
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

func writeEventsSheet(f *excelize.File, tl *models.SessionTimeline, headerStyle int) error {
	sheet := reportEventsSheet
	f.SetColWidth(sheet, "A", "A", 30)
	f.SetColWidth(sheet, "B", "C", 40)

	header := []interface{}{"Timestamp", "Type", "Event ID"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	f.SetCellStyle(sheet, "A1", "C1", headerStyle)

	row := 2
	for _, e := range tl.Entries {
		if e.Kind != models.TimelineIntegrityEvent {
			continue
		}
		values := []interface{}{e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.EventType), e.ID.String()}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeSnapshotsSheet(f *excelize.File, tl *models.SessionTimeline, headerStyle int) error {
	sheet := reportSnapshotsSheet
	f.SetColWidth(sheet, "A", "A", 30)
	f.SetColWidth(sheet, "B", "B", 60)
	f.SetColWidth(sheet, "C", "D", 40)

	header := []interface{}{"Timestamp", "Image URL", "Flagged", "Snapshot ID"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	f.SetCellStyle(sheet, "A1", "D1", headerStyle)

	row := 2
	for _, e := range tl.Entries {
		if e.Kind != models.TimelineSnapshot {
			continue
		}
		values := []interface{}{e.Timestamp.UTC().Format(time.RFC3339Nano), e.ImageURL, e.Flagged, e.ID.String()}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
		row++
	}
	return nil
}
