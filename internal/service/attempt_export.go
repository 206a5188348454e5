package service

import (
	"context"
	"io"
	"time"

	"exam-engine/internal/domain"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	exportSheet    = "Attempts"
	exportPageSize = 100
)

var exportHeader = []interface{}{
	"Attempt ID", "User ID", "Exam Code", "Exam Title", "Mode", "Status",
	"Started At", "Submitted At", "Total Score",
	"Listening", "Reading", "Writing", "Speaking", "Overall",
}

func (s *attemptService) ExportAttempts(ctx context.Context, query dto.AttemptListQuery, w io.Writer) (int, error) {
	filter, err := attemptFilter(query)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Get().Warn("Failed to close export workbook", zap.Error(err))
		}
	}()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, domain.NewInternalError("Failed to prepare export", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return 0, domain.NewInternalError("Failed to prepare export", err)
	}

	rows := 0
	filter.Limit = exportPageSize
	for {
		filter.Offset = rows
		listings, total, err := s.attempts.SearchAttempts(ctx, filter)
		if err != nil {
			return 0, domain.NewInternalError("Failed to search attempts", err)
		}
		for _, l := range listings {
			cell, err := excelize.CoordinatesToCellName(1, rows+2)
			if err != nil {
				return 0, domain.NewInternalError("Failed to write export", err)
			}
			row := exportRow(l)
			if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
				return 0, domain.NewInternalError("Failed to write export", err)
			}
			rows++
		}
		if len(listings) == 0 || rows >= total {
			break
		}
	}

	if err := f.Write(w); err != nil {
		return 0, domain.NewInternalError("Failed to write export", err)
	}
	logger.Get().Info("Attempts exported", zap.Int("rows", rows))
	return rows, nil
}

func exportRow(l *domain.AttemptListing) []interface{} {
	a := l.Attempt
	row := []interface{}{
		a.ID, a.UserID, l.ExamCode, l.ExamTitle, string(a.Mode), string(a.Status),
		a.StartedAt.Format(time.RFC3339), "", optionalFloat(a.TotalScore),
		"", "", "", "", "",
	}
	if a.SubmittedAt != nil {
		row[7] = a.SubmittedAt.Format(time.RFC3339)
	}
	if a.ScoreSummary != nil {
		b := a.ScoreSummary.Bands
		for i, band := range []*float64{b.Listening, b.Reading, b.Writing, b.Speaking, b.Overall} {
			row[9+i] = optionalFloat(band)
		}
	}
	return row
}

func optionalFloat(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
