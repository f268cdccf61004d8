package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/scheduling"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type roomTimetableSource interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.ClassScheduleDetail, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportResult is a rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders timetables for download.
type ExportService struct {
	rooms      roomReader
	timetables roomTimetableSource
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers default to the
// pkg/export implementations.
func NewExportService(rooms roomReader, timetables roomTimetableSource, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{rooms: rooms, timetables: timetables, csv: csv, pdf: pdf, logger: logger}
}

// RoomTimetable renders a room's weekly timetable as CSV (default) or PDF.
func (s *ExportService) RoomTimetable(ctx context.Context, roomID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, lookupError(err, "room")
	}
	schedules, _, err := s.timetables.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	dataset := timetableDataset(room, schedules)
	result := &ExportResult{Filename: fmt.Sprintf("%s-timetable.%s", sanitizeFilename(room.Name), format)}
	switch format {
	case ExportFormatPDF:
		result.ContentType = "application/pdf"
		result.Payload, err = s.pdf.Render(dataset)
	default:
		result.ContentType = "text/csv"
		result.Payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}

	s.logger.Debug("timetable exported", zap.String("room_id", roomID), zap.String("format", format), zap.Int("rows", len(dataset.Rows)))
	return result, nil
}

// timetableDataset orders bookings Monday first, then by start time.
func timetableDataset(room *models.Room, schedules []models.ClassScheduleDetail) export.Dataset {
	sorted := make([]models.ClassScheduleDetail, len(schedules))
	copy(sorted, schedules)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := dayIndex(sorted[i].DayOfWeek), dayIndex(sorted[j].DayOfWeek)
		if di != dj {
			return di < dj
		}
		return sorted[i].StartTime < sorted[j].StartTime
	})

	data := export.Dataset{
		Title:   fmt.Sprintf("%s timetable", room.Name),
		Headers: []string{"Day", "Start", "End", "Class"},
		Rows:    make([][]string, 0, len(sorted)),
	}
	for _, item := range sorted {
		data.Rows = append(data.Rows, []string{item.DayOfWeek, item.StartTime, item.EndTime, item.ClassName})
	}
	return data
}

func dayIndex(raw string) int {
	day, err := scheduling.NormalizeDay(raw)
	if err != nil {
		return len(scheduling.Weekdays) + 1
	}
	return day.Index()
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "room"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
