package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

const SheetName = "Shortlist"

var header = []any{"Rank", "CV", "Path", "LLM score", "Vector distance", "Decision", "Justification", "Degraded"}

// WriteShortlist renders the ranked candidates as a single-sheet workbook.
func WriteShortlist(w io.Writer, shortlist *domain.Shortlist) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := fill(f, shortlist); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveShortlist writes the workbook to path.
func SaveShortlist(path string, shortlist *domain.Shortlist) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := fill(f, shortlist); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func fill(f *excelize.File, shortlist *domain.Shortlist) error {
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "H1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	if shortlist != nil {
		for i, c := range shortlist.Candidates {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			row := []any{i + 1, c.SourceName, c.SourcePath, c.LLMScore, c.FaissScore, string(c.Decision), c.Justification, c.Degraded}
			if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.SetColWidth(SheetName, "B", "C", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SheetName, "G", "G", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}
