package roster

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Load parses a roster file into rows. The format is picked from the file
// extension; files without one are sniffed (JSON array vs CSV).
func Load(name string, r io.Reader) ([]Row, error) {
	var (
		rows []Row
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		rows, err = loadXLSX(r)
	case ".csv":
		rows, err = loadDelimited(r, ',')
	case ".tsv":
		rows, err = loadDelimited(r, '\t')
	case ".json":
		rows, err = loadJSON(r)
	case ".xls":
		err = errors.New("legacy .xls workbooks are not supported, save as .xlsx")
	case "":
		rows, err = sniff(r)
	default:
		err = fmt.Errorf("unsupported roster format %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}
	return rows, nil
}

func sniff(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty file")
			}
			return nil, err
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '[' {
			return loadJSON(br)
		}
		return loadDelimited(br, ',')
	}
}

// loadXLSX reads the first sheet. Numeric cells keep their type so that
// identifiers stored as numbers and as text stringify the same way.
func loadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(raw))
	for ri, rec := range raw {
		row := make(Row, len(rec))
		for ci, v := range rec {
			if v == "" {
				row[ci] = EmptyCell()
				continue
			}
			axis, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sheet, axis)
			if err != nil {
				return nil, err
			}
			row[ci] = xlsxCell(typ, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func xlsxCell(typ excelize.CellType, raw string) Cell {
	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeUnset, excelize.CellTypeDate:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return NumberCell(f)
		}
	}
	return TextCell(raw)
}

func loadDelimited(r io.Reader, comma rune) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		rows = append(rows, TextRow(rec...))
	}
	return rows, nil
}

// loadJSON accepts an array of arrays of scalars.
func loadJSON(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw [][]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("expected JSON array of arrays: %w", err)
	}
	rows := make([]Row, 0, len(raw))
	for _, rec := range raw {
		row := make(Row, len(rec))
		for i, v := range rec {
			row[i] = jsonCell(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonCell(v any) Cell {
	switch t := v.(type) {
	case nil:
		return EmptyCell()
	case string:
		return TextCell(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return NumberCell(f)
		}
		return TextCell(t.String())
	default:
		b, _ := json.Marshal(t)
		return TextCell(string(bytes.TrimSpace(b)))
	}
}
