// Package excel reads prediction input frames from Excel and CSV files.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"mixsim/domain/model"
)

// FrameReader handles reading observation frames from Excel and CSV files.
// The first row names the columns; numeric cells become covariates and
// non-numeric cells become grouping-factor levels.
type FrameReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewFrameReader creates a reader for the given file, dispatching on extension.
func NewFrameReader(filePath string) *FrameReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &FrameReader{filePath: filePath, fileType: fileType}
}

// ReadFrame reads the file into an observation frame.
func (r *FrameReader) ReadFrame() (model.Frame, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	switch r.fileType {
	case "csv":
		return r.readCSV()
	default:
		return r.readExcel()
	}
}

func (r *FrameReader) readExcel() (model.Frame, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets: %s", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return framify(rows)
}

func (r *FrameReader) readCSV() (model.Frame, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return framify(rows)
}

// framify converts header + data rows into observation rows, deciding per
// cell: parseable number means covariate, anything else means group level.
func framify(rows [][]string) (model.Frame, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("need a header row and at least one data row, got %d rows", len(rows))
	}
	headers := rows[0]
	frame := make(model.Frame, 0, len(rows)-1)
	for _, raw := range rows[1:] {
		obs := model.ObservationRow{
			Covariates: make(map[string]float64),
			Groups:     make(map[string]string),
		}
		for ci, cell := range raw {
			if ci >= len(headers) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				obs.Covariates[headers[ci]] = v
			} else {
				obs.Groups[headers[ci]] = cell
			}
		}
		frame = append(frame, obs)
	}
	return frame, nil
}
