// Package feed reads book records from CSV and parquet files.
//
// Both readers map the columns id, title, authors, categories and description onto
// batch records. Unknown columns are ignored. A row without an id gets its
// 1-based row number.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
)

// ErrNoTitleColumn is returned for a CSV header without a title column.
var ErrNoTitleColumn = errors.New("feed: title column is required")

var columns = []string{
	domdoc.FieldID, domdoc.FieldTitle, domdoc.FieldAuthors,
	domdoc.FieldCategories, domdoc.FieldDescription,
}

// ReadCSV reads a headed CSV stream. Column names are matched case-insensitively.
func ReadCSV(r io.Reader) ([]dombatch.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(columns))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, c := range columns {
			if name == c {
				idx[c] = i
			}
		}
	}
	if _, ok := idx[domdoc.FieldTitle]; !ok {
		return nil, ErrNoTitleColumn
	}

	var out []dombatch.Record
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read csv row %d: %w", row, err)
		}
		fields := make(map[string]any, len(columns))
		for _, c := range columns[1:] {
			if i, ok := idx[c]; ok && i < len(rec) {
				fields[c] = rec[i]
			}
		}
		var id string
		if i, ok := idx[domdoc.FieldID]; ok && i < len(rec) {
			id = strings.TrimSpace(rec[i])
		}
		out = append(out, record(id, row, fields))
	}
}

// Row is the parquet layout of a book. Description is a list of passages.
type Row struct {
	ID          *string  `parquet:"id,optional"`
	Title       string   `parquet:"title"`
	Authors     *string  `parquet:"authors,optional"`
	Categories  *string  `parquet:"categories,optional"`
	Description []string `parquet:"description,list"`
}

// ReadParquet reads every row of the parquet file at path.
func ReadParquet(path string) ([]dombatch.Record, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	out := make([]dombatch.Record, len(rows))
	for i, r := range rows {
		fields := map[string]any{
			domdoc.FieldTitle:       r.Title,
			domdoc.FieldAuthors:     deref(r.Authors),
			domdoc.FieldCategories:  deref(r.Categories),
			domdoc.FieldDescription: r.Description,
		}
		out[i] = record(strings.TrimSpace(deref(r.ID)), i+1, fields)
	}
	return out, nil
}

// WriteParquet writes the valid records as Row values and returns one error result
// per skipped record. Used to convert CSV feeds.
func WriteParquet(path string, records []dombatch.Record) ([]dombatch.Result, error) {
	rows := make([]Row, 0, len(records))
	var skipped []dombatch.Result
	for _, rec := range records {
		doc, err := domdoc.FromFields(rec.ID, rec.Fields)
		if err != nil {
			skipped = append(skipped, dombatch.NewError(rec.ID, err))
			continue
		}
		id, authors, categories := doc.ID(), doc.Authors(), doc.Categories()
		rows = append(rows, Row{
			ID:          &id,
			Title:       doc.Title(),
			Authors:     &authors,
			Categories:  &categories,
			Description: doc.Description(),
		})
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return skipped, fmt.Errorf("write parquet %s: %w", path, err)
	}
	return skipped, nil
}

func record(id string, row int, fields map[string]any) dombatch.Record {
	if id == "" {
		id = strconv.Itoa(row)
	}
	return dombatch.Record{ID: id, Fields: fields}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
