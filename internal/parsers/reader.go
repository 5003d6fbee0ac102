// Package parsers reads upstream spreadsheet exports into raw row grids and
// maps the payment status, confirmation and receipt exports into records.
//
// Supported formats:
//   - .xlsx / .xlsm: first sheet, raw cell values (date cells arrive as
//     spreadsheet serials and are converted by the normalizer)
//   - .csv / .txt: comma or semicolon separated, UTF-8 or Windows-1252
//
// Example usage:
//
//	tables, err := parsers.ReadTables(ctx, []string{"status.xlsx", "banco_pesos.csv"}, 4)
//	mapper := parsers.NewExportMapper(parsers.DefaultExportConfig(), norm, log)
//	requests, report, err := mapper.Requests(tables[0], nil, seq)
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/sourcegraph/conc/iter"
	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding/charmap"
)

// Table is the raw content of one export file
type Table struct {
	Name string
	Path string
	Rows [][]string
}

// IsEmpty reports whether the table has no non-blank row
func (t *Table) IsEmpty() bool {
	for _, row := range t.Rows {
		if !isEmptyRow(row) {
			return false
		}
	}
	return true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable reads an export file into a row grid
func ReadTable(path string) (*Table, error) {
	log := logger.WithComponent("reader").WithField("file_path", path)

	info, err := os.Stat(path)
	if err != nil {
		log.WithError(err).Error("Failed to stat export file")
		return nil, fileError(path, err)
	}
	if info.IsDir() {
		return nil, errors.FileError(errors.CodeUnsupportedFormat, path, nil)
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	case ".csv", ".txt":
		rows, err = readCSV(path)
	default:
		return nil, errors.FileError(errors.CodeUnsupportedFormat, path, nil)
	}
	if err != nil {
		log.WithError(err).Error("Failed to read export file")
		return nil, err
	}

	log.WithField("rows", len(rows)).Debug("Export file read")

	return &Table{
		Name: filepath.Base(path),
		Path: path,
		Rows: rows,
	}, nil
}

func fileError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ParseError(errors.CodeEmptySheet, path, 0, "", nil)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(path, err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, errors.ParseError(errors.CodeEncodingError, path, 0, "", err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "", err)
		}
		rows = append(rows, record)
	}

	return rows, nil
}

// detectDelimiter picks ';' when the first line has more semicolons than commas
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

type readResult struct {
	table *Table
	err   error
}

// ReadTables reads files concurrently with at most workers goroutines
// (0 means one per CPU). Tables are returned in input order. Any failed read
// fails the whole call: a single failure is returned as is, several are
// combined under a file error carrying the code of the first.
func ReadTables(ctx context.Context, paths []string, workers int) ([]*Table, error) {
	mapper := iter.Mapper[string, readResult]{MaxGoroutines: workers}

	results := mapper.Map(paths, func(path *string) readResult {
		if err := ctx.Err(); err != nil {
			return readResult{err: err}
		}
		table, err := ReadTable(*path)
		return readResult{table: table, err: err}
	})

	tables := make([]*Table, len(results))
	var failed []error
	for i, r := range results {
		if r.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && r.err == ctxErr {
				return nil, errors.InternalError(errors.CodeUnexpectedError, "reading "+paths[i], r.err)
			}
			failed = append(failed, errors.WrapIfNeeded(r.err, errors.CategoryFile, errors.CodeFileCorrupted, "failed to read "+paths[i]))
			continue
		}
		tables[i] = r.table
	}

	switch len(failed) {
	case 0:
		return tables, nil
	case 1:
		return nil, failed[0]
	}

	first, _ := errors.AsConciliationError(failed[0])
	return nil, errors.Wrap(multierr.Combine(failed...), errors.CategoryFile, first.Code,
		fmt.Sprintf("%d of %d input files could not be read", len(failed), len(paths))).
		WithSuggestion("check every listed path before running again")
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
