package report

import (
	"bytes"
	"fmt"
	"time"

	"rental-booking/internal/models"

	"github.com/xuri/excelize/v2"
)

// RequestsSheet name of the sheet written by GenerateRequestsExport
const RequestsSheet = "Requests"

// RequestsExportHeader column titles, in order
var RequestsExportHeader = []string{
	"Request ID",
	"Requester",
	"Check In",
	"Check Out",
	"Nights",
	"Status",
	"Message",
	"Created At",
}

var requestsColumnWidths = []float64{38, 20, 12, 12, 8, 12, 40, 20}

// statusFills background per status so hosts can scan the sheet
var statusFills = map[models.RequestStatus]string{
	models.StatusWait:     "#FFF4CC",
	models.StatusApproved: "#DFF5E1",
	models.StatusDenied:   "#F8D7DA",
}

// GenerateRequestsExport writes the requests of one unit to an xlsx workbook
func GenerateRequestsExport(unit *models.Unit, requests []models.Request) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(RequestsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	if unit != nil {
		if err := f.SetDocProps(&excelize.DocProperties{
			Title:   fmt.Sprintf("Requests for %s", unit.Title),
			Subject: unit.ID,
			Created: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set document properties: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range RequestsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(RequestsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(RequestsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(RequestsSheet, name, name, requestsColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	statusStyles := make(map[models.RequestStatus]int, len(statusFills))
	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create status style: %w", err)
		}
		statusStyles[status] = id
	}

	for i, r := range requests {
		row := i + 2
		values := []any{
			r.ID,
			r.CreatedBy,
			r.CheckIn.Format(time.DateOnly),
			r.CheckOut.Format(time.DateOnly),
			r.Range().Nights(),
			string(r.Status),
			r.Message,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(RequestsSheet, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		if style, ok := statusStyles[r.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(6, row)
			if err := f.SetCellStyle(RequestsSheet, cell, cell, style); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set status style: %w", err)
			}
		}
	}

	if err := f.SetPanes(RequestsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
