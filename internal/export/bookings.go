package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "By date"
	dateLayout    = "2006-01-02"
)

// MaxRangeDays bounds one export.
const MaxRangeDays = 366

var ErrInvalidRange = errors.New("invalid export date range")

var bookingHeaders = []string{
	"ID", "Date", "Time", "Lesson", "Parent ID", "Amount",
	"Status", "Payment", "Method", "Admin payment", "Waiver", "Special requests",
}

// BookingExporter renders committed bookings into an xlsx workbook.
type BookingExporter struct {
	bookings domain.BookingReader
	dir      string
	logger   *zerolog.Logger
}

func NewBookingExporter(bookings domain.BookingReader, dir string, logger *zerolog.Logger) *BookingExporter {
	return &BookingExporter{bookings: bookings, dir: dir, logger: logger}
}

// ParseRange validates an inclusive YYYY-MM-DD range.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from=%q", ErrInvalidRange, from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to=%q", ErrInvalidRange, to)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxRangeDays)
	}
	return start, end, nil
}

// Write builds the workbook for [from, to] and streams it to w.
func (e *BookingExporter) Write(ctx context.Context, w io.Writer, from, to string) (int, error) {
	f, n, err := e.build(ctx, from, to)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("error writing workbook: %w", err)
	}
	return n, nil
}

// SaveFile writes the workbook into the export directory and returns its path.
func (e *BookingExporter) SaveFile(ctx context.Context, from, to string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, n, err := e.build(ctx, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", n).Msg("Excel file created")
	return filePath, nil
}

func FileName(from, to string) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from, to)
}

func (e *BookingExporter) build(ctx context.Context, from, to string) (*excelize.File, int, error) {
	start, end, err := ParseRange(from, to)
	if err != nil {
		return nil, 0, err
	}

	bookings, err := e.bookings.GetBookingsByDateRange(ctx, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("error getting bookings: %w", err)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeBookingRows(f, bookings); err != nil {
		f.Close()
		return nil, 0, err
	}
	if err := writeSummary(f, bookings, start, end); err != nil {
		f.Close()
		return nil, 0, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, len(bookings), nil
}

func writeBookingRows(f *excelize.File, bookings []*models.Booking) error {
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	for i, title := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(bookingHeaders), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", last, header)

	styles := make(map[string]int)
	for i, b := range bookings {
		row := i + 2
		lesson := string(b.LessonType)
		if p, ok := b.LessonType.Policy(); ok {
			lesson = p.Name
		}
		waiver := "no"
		if b.WaiverSigned {
			waiver = "yes"
		}
		amount, _ := b.Amount.Float64()

		values := []interface{}{
			b.ID, b.Date, b.Time, lesson, b.ParentID, amount,
			b.Status, b.PaymentStatus, b.BookingMethod, b.AdminPaymentMethod, waiver, b.SpecialRequests,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}

		styleID, ok := styles[b.Status]
		if !ok {
			styleID, err = statusStyle(f, b.Status)
			if err != nil {
				continue
			}
			styles[b.Status] = styleID
		}
		cell, _ := excelize.CoordinatesToCellName(7, row)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, styleID)
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "K", 16)
	_ = f.SetColWidth(bookingsSheet, "L", "L", 40)
	return nil
}

// writeSummary lists every day of the range with its booking count and revenue.
func writeSummary(f *excelize.File, bookings []*models.Booking, start, end time.Time) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	type day struct {
		count  int
		amount float64
	}
	days := make(map[string]*day)
	for _, b := range bookings {
		if b.Status == models.StatusCancelled {
			continue
		}
		d, ok := days[b.Date]
		if !ok {
			d = &day{}
			days[b.Date] = d
		}
		d.count++
		amount, _ := b.Amount.Float64()
		d.amount += amount
	}

	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Period: %s - %s",
		start.Format("02.01.2006"), end.Format("02.01.2006")))
	_ = f.MergeCell(summarySheet, "A1", "C1")
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", title)

	_ = f.SetSheetRow(summarySheet, "A2", &[]interface{}{"Date", "Bookings", "Amount"})

	var dates []string
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		dates = append(dates, current.Format(dateLayout))
	}

	for i, date := range dates {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		row := []interface{}{date, 0, 0.0}
		if d, ok := days[date]; ok {
			row = []interface{}{date, d.count, d.amount}
		}
		_ = f.SetSheetRow(summarySheet, cell, &row)
	}
	_ = f.SetColWidth(summarySheet, "A", "C", 16)
	return nil
}

func statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusPending:
		color = "#FFEB9C"
	case models.StatusCancelled, models.StatusNoShow:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
