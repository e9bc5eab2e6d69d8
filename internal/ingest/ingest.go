// Package ingest turns tabular review files into text units.
package ingest

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"genie/internal/chunker"
	"genie/internal/domain"
)

// Columns names the source columns for each review field.
type Columns struct {
	Title  string
	Review string
	Rating string
	Date   string
}

// DefaultColumns matches the headers of the bundled review dataset.
var DefaultColumns = Columns{Title: "Title", Review: "Review", Rating: "Rating", Date: "Date"}

// Options controls how a source is read and converted.
type Options struct {
	Columns Columns
	// Sheet selects the worksheet of spreadsheet sources; empty means the first one.
	Sheet string
	// Chunker splits long reviews into several units; nil keeps one unit per row.
	Chunker *chunker.SentenceChunker
}

// Record is one row of source data.
type Record struct {
	Title  string
	Review string
	Rating string
	Date   string
}

// table is a header row plus data rows, whatever the file format.
type table struct {
	header []string
	rows   [][]string
}

var nullLike = map[string]struct{}{"": {}, "nan": {}, "none": {}}

// Load reads the source at path and converts its rows to text units with
// parallel ids. When the source cannot be read at all it returns empty
// results and an error wrapping domain.ErrDataLoad.
func Load(path string, opts Options) ([]domain.TextUnit, []string, error) {
	var (
		t      *table
		err    error
		source domain.Source
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		source = domain.SourceXLSX
		t, err = readXLSX(path, opts.Sheet)
	default:
		source = domain.SourceCSV
		t, err = readCSV(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrDataLoad, path, err)
	}
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns
	}
	units, ids := Convert(t.records(opts.Columns), source, opts.Chunker)
	return units, ids, nil
}

// Convert builds text units from records. Records whose review is empty or a
// null-like sentinel are skipped; ids are the record's row index.
func Convert(records []Record, source domain.Source, ch *chunker.SentenceChunker) ([]domain.TextUnit, []string) {
	units := make([]domain.TextUnit, 0, len(records))
	ids := make([]string, 0, len(records))
	for i, rec := range records {
		title := strings.TrimSpace(rec.Title)
		review := strings.TrimSpace(rec.Review)
		if _, skip := nullLike[strings.ToLower(review)]; skip {
			continue
		}
		rowID := strconv.Itoa(i)
		meta := domain.Metadata{
			Title:  title,
			Rating: domain.Rating(placeholder(rec.Rating)),
			Date:   placeholder(rec.Date),
			Source: source,
			DocID:  rowID,
		}
		pieces := []string{review}
		if ch != nil {
			pieces = ch.Split(review)
		}
		for n, piece := range pieces {
			id := rowID
			if n > 0 {
				id = rowID + ":" + strconv.Itoa(n)
			}
			units = append(units, domain.TextUnit{
				ID:       id,
				Content:  FormatContent(title, piece),
				Metadata: meta,
			})
			ids = append(ids, id)
		}
	}
	return units, ids
}

// FormatContent renders the text that gets embedded for one review.
func FormatContent(title, review string) string {
	return "Restaurant: " + title + "\nReview: " + review
}

func placeholder(v string) string {
	v = strings.TrimSpace(v)
	if _, null := nullLike[strings.ToLower(v)]; null {
		return domain.NotAvailable
	}
	return v
}

// records maps rows to Records by header name (case-insensitive). Missing
// title, rating and date columns degrade to the placeholder; a missing review
// column leaves every review empty.
func (t *table) records(cols Columns) []Record {
	index := make(map[string]int, len(t.header))
	for i, h := range t.header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lookup := func(name string) int {
		if i, ok := index[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i
		}
		return -1
	}
	titleIdx, reviewIdx := lookup(cols.Title), lookup(cols.Review)
	ratingIdx, dateIdx := lookup(cols.Rating), lookup(cols.Date)

	out := make([]Record, 0, len(t.rows))
	for _, row := range t.rows {
		rec := Record{
			Title:  cell(row, titleIdx, domain.NotAvailable),
			Review: cell(row, reviewIdx, ""),
			Rating: cell(row, ratingIdx, domain.NotAvailable),
			Date:   cell(row, dateIdx, domain.NotAvailable),
		}
		out = append(out, rec)
	}
	return out
}

func cell(row []string, idx int, missing string) string {
	if idx < 0 {
		return missing
	}
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
