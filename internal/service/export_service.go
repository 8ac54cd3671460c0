package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
	"github.com/noah-isme/lab-reservation-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var scheduleExportHeaders = []string{"Slot", "Period", "Class", "Start", "End", "Status", "Requester", "Subject"}

type scheduleSource interface {
	GetDailySchedule(ctx context.Context, resourceID string, date civiltime.Date) (*models.DailySchedule, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders a resource's daily schedule as CSV or PDF.
type ExportService struct {
	schedules scheduleSource
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(schedules scheduleSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		exporter := export.NewPDFExporter()
		exporter.Highlight = func(row []string) bool { return len(row) > 5 && row[5] == slotStatusOccupied }
		pdf = exporter
	}
	return &ExportService{schedules: schedules, csv: csv, pdf: pdf, logger: logger}
}

// ExportDailySchedule renders the schedule of resourceID on date.
func (s *ExportService) ExportDailySchedule(ctx context.Context, resourceID string, date civiltime.Date, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatPDF
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	schedule, err := s.schedules.GetDailySchedule(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	dataset := ScheduleDataset(schedule)
	base := fmt.Sprintf("schedule_%s_%s", sanitizeFilename(resourceID), date)

	var file *ExportFile
	switch format {
	case ExportFormatCSV:
		body, renderErr := s.csv.Render(dataset)
		if renderErr != nil {
			return nil, appErrors.WrapAs(appErrors.ErrInternal, renderErr, "failed to render csv")
		}
		file = &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Body: body}
	default:
		body, renderErr := s.pdf.Render(dataset)
		if renderErr != nil {
			return nil, appErrors.WrapAs(appErrors.ErrInternal, renderErr, "failed to render pdf")
		}
		file = &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}
	}

	s.logger.Debug("schedule exported", zap.String("resource_id", resourceID), zap.String("date", date.String()), zap.String("format", format))
	return file, nil
}

const (
	slotStatusFree        = "free"
	slotStatusOccupied    = "occupied"
	slotStatusPast        = "past"
	slotStatusNonTeaching = "non-teaching"
)

// ScheduleDataset flattens a schedule into export rows in slot order.
func ScheduleDataset(schedule *models.DailySchedule) export.Dataset {
	data := export.Dataset{
		Title:    fmt.Sprintf("Resource %s", schedule.ResourceID),
		Subtitle: fmt.Sprintf("%s (%s)", schedule.Date, schedule.TimeZone),
		Headers:  scheduleExportHeaders,
	}
	if schedule.IsNonTeachingDay && schedule.NonTeachingReason != nil {
		data.Subtitle = fmt.Sprintf("%s - non-teaching day: %s", data.Subtitle, *schedule.NonTeachingReason)
	}
	for _, slot := range schedule.AllSlots() {
		status := slotStatusFree
		switch {
		case slot.IsOccupied:
			status = slotStatusOccupied
		case schedule.IsNonTeachingDay:
			status = slotStatusNonTeaching
		case slot.IsPast:
			status = slotStatusPast
		}
		requester, subject := "", ""
		if slot.Reservation != nil {
			requester = slot.Reservation.RequesterID
			if slot.Reservation.Subject != nil {
				subject = *slot.Reservation.Subject
			}
		}
		data.Rows = append(data.Rows, []string{
			slot.ID,
			string(slot.PeriodID),
			fmt.Sprintf("%d", slot.ClassIndex),
			slot.StartClock,
			slot.EndClock,
			status,
			requester,
			subject,
		})
	}
	return data
}

func sanitizeFilename(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, raw)
}
