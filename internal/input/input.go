// Package input loads the list of sites to scan from CSV or XLSX files.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

var (
	organizationColumns = []string{"organization", "company", "org", "name"}
	urlColumns          = []string{"url", "website", "site", "domain"}
)

// ErrNoURLColumn is returned when the header row has no recognizable URL column.
var ErrNoURLColumn = errors.New("input has no url column")

// Load reads requests from path, choosing the format by file extension.
func Load(path string) ([]scanner.ScanRequest, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path) //nolint:gosec // operator-supplied input path
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close() //nolint:errcheck // read-only
		return ReadCSV(f)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported input format %q", ext)
	}
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader) ([]scanner.ScanRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

func loadXLSX(path string) ([]scanner.ScanRequest, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]scanner.ScanRequest, error) {
	if len(rows) == 0 {
		return nil, errors.New("input is empty")
	}
	header := rows[0]
	urlIdx := columnIndex(header, urlColumns)
	if urlIdx < 0 {
		return nil, fmt.Errorf("%w: want one of %s", ErrNoURLColumn, strings.Join(urlColumns, ", "))
	}
	orgIdx := columnIndex(header, organizationColumns)

	requests := make([]scanner.ScanRequest, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		requests = append(requests, scanner.ScanRequest{
			Organization: cell(row, orgIdx),
			URL:          cell(row, urlIdx),
		})
	}
	return requests, nil
}

func columnIndex(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			h = strings.TrimPrefix(h, "\ufeff")
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
