// Package report renders a plan's margin ledger as an xlsx workbook.
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/margins/internal/costplan"
)

const (
	// ContentType is the media type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	marginsSheet = "Margins"
	summarySheet = "Summary"
)

var marginHeaders = []string{"#", "Type", "System", "Cost", "Margin %", "Minimum %", "Margin"}

// PlanWorkbook builds a workbook with one row per margin line and a summary
// sheet with the plan totals. The caller closes the returned file.
func PlanWorkbook(view *costplan.PlanView) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := writePlan(f, view); err != nil {
		f.Close()
		return nil, "", err
	}
	return f, filename(view.Plan.Name), nil
}

func writePlan(f *excelize.File, view *costplan.PlanView) error {
	if err := f.SetSheetName("Sheet1", marginsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create total style: %w", err)
	}

	w := &sheetWriter{f: f, sheet: marginsSheet}
	for i, h := range marginHeaders {
		cell := w.cell(i+1, 1)
		w.value(cell, h)
		w.style(cell, cell, headerStyle)
	}

	for i, l := range view.Lines {
		row := i + 2
		system := "no"
		if l.System {
			system = "yes"
		}
		w.value(w.cell(1, row), l.Sequence)
		w.value(w.cell(2, row), l.TypeName)
		w.value(w.cell(3, row), system)
		w.decimal(w.cell(4, row), l.Cost)
		w.decimal(w.cell(5, row), l.MarginPercent)
		w.decimal(w.cell(6, row), l.Minimum)
		w.decimal(w.cell(7, row), l.Margin)
	}

	totalRow := len(view.Lines) + 2
	w.value(w.cell(2, totalRow), "Total")
	w.decimal(w.cell(7, totalRow), view.Totals.TotalMargin)
	w.style(w.cell(1, totalRow), w.cell(7, totalRow), totalStyle)

	for i, width := range []float64{6, 24, 8, 14, 12, 12, 14} {
		w.width(i+1, width)
	}
	if w.err != nil {
		return fmt.Errorf("write margins sheet: %w", w.err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	t := view.Totals
	summary := []struct {
		label string
		value decimal.NullDecimal
	}{
		{"Quantity", valid(view.Plan.Quantity)},
		{"Total cost", valid(t.TotalCost)},
		{"Cost price", valid(t.CostPrice)},
		{"Total margin", valid(t.TotalMargin)},
		{"Unit margin", t.UnitMargin},
		{"Margin %", t.PercentMargin},
		{"Total price", valid(t.TotalPrice)},
		{"Unit price", valid(t.UnitPrice)},
	}

	w = &sheetWriter{f: f, sheet: summarySheet}
	w.value("A1", "Plan")
	w.style("A1", "A1", totalStyle)
	w.value("B1", view.Plan.Name)
	for i, s := range summary {
		row := i + 2
		label := w.cell(1, row)
		w.value(label, s.label)
		w.style(label, label, totalStyle)
		// Absent figures leave the cell empty.
		if s.value.Valid {
			w.decimal(w.cell(2, row), s.value.Decimal)
		}
	}
	w.width(1, 16)
	w.width(2, 24)
	if w.err != nil {
		return fmt.Errorf("write summary sheet: %w", w.err)
	}
	return nil
}

// sheetWriter keeps the first error of a run of cell writes.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) cell(col, row int) string {
	if w.err != nil {
		return ""
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	w.err = err
	return name
}

func (w *sheetWriter) value(cell string, v any) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, cell, v)
	}
}

// decimal writes the exact decimal text as a numeric cell.
func (w *sheetWriter) decimal(cell string, d decimal.Decimal) {
	if w.err == nil {
		w.err = w.f.SetCellDefault(w.sheet, cell, d.String())
	}
}

func (w *sheetWriter) style(from, to string, style int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, from, to, style)
	}
}

func (w *sheetWriter) width(col int, width float64) {
	if w.err != nil {
		return
	}
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetColWidth(w.sheet, name, name, width)
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func filename(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "plan"
	}
	return fmt.Sprintf("margins_%s.xlsx", clean)
}
