package benchmark

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Column names every dataset must provide, after header normalization.
const (
	ColumnMetricCode = "metric_code"
	ColumnSegment    = "segment"
	ColumnRegion     = "region"
	ColumnValue      = "value"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row holds the raw required cells of one dataset row. Missing columns are "".
type Row struct {
	MetricCode string
	Segment    string
	Region     string
	Value      string
}

// NormalizeHeader trims, lower-cases and replaces spaces with underscores.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// columnIndex maps the required columns to their position in header, -1 when absent.
// A repeated header resolves to its last occurrence.
type columnIndex struct {
	metricCode, segment, region, value int
}

func indexColumns(header []string) columnIndex {
	idx := columnIndex{-1, -1, -1, -1}
	for i, h := range header {
		switch NormalizeHeader(h) {
		case ColumnMetricCode:
			idx.metricCode = i
		case ColumnSegment:
			idx.segment = i
		case ColumnRegion:
			idx.region = i
		case ColumnValue:
			idx.value = i
		}
	}
	return idx
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func (c columnIndex) row(record []string) Row {
	return Row{
		MetricCode: cell(record, c.metricCode),
		Segment:    cell(record, c.segment),
		Region:     cell(record, c.region),
		Value:      cell(record, c.value),
	}
}

// rowsFromTable turns a header-first table into rows.
func rowsFromTable(table [][]string) []Row {
	if len(table) == 0 {
		return []Row{}
	}
	idx := indexColumns(table[0])
	rows := make([]Row, 0, len(table)-1)
	for _, record := range table[1:] {
		rows = append(rows, idx.row(record))
	}
	return rows
}

// ParseCSV reads a UTF-8 CSV dataset whose first record is the header.
// A leading byte order mark is ignored and ragged rows are accepted.
func ParseCSV(content []byte) ([]Row, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: CSV is not valid UTF-8", ErrMalformedDataset)
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var table [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
		table = append(table, record)
	}
	return rowsFromTable(table), nil
}
