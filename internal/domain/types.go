package domain

import (
	"strconv"
	"strings"
)

// NotAvailable is the placeholder for review fields the source does not provide.
const NotAvailable = "N/A"

// Source tags the kind of file a text unit was ingested from.
type Source string

const (
	SourceCSV  Source = "csv"
	SourceXLSX Source = "xlsx"
)

// Rating is a review rating as it appeared in the source.
type Rating string

// Float returns the numeric rating, if the source value is a number.
func (r Rating) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(r)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (r Rating) String() string {
	if strings.TrimSpace(string(r)) == "" {
		return NotAvailable
	}
	return string(r)
}

// Metadata is the fixed set of attributes carried by every text unit.
type Metadata struct {
	Title  string
	Rating Rating
	Date   string
	Source Source
	DocID  string
}

const (
	metaTitle  = "title"
	metaRating = "rating"
	metaDate   = "date"
	metaSource = "source"
	metaDocID  = "doc_id"
)

// Map flattens metadata into the string map vector stores persist.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		metaTitle:  m.Title,
		metaRating: m.Rating.String(),
		metaDate:   m.Date,
		metaSource: string(m.Source),
		metaDocID:  m.DocID,
	}
}

// MetadataFromMap is the inverse of Metadata.Map. Unknown keys are ignored.
func MetadataFromMap(in map[string]string) Metadata {
	return Metadata{
		Title:  in[metaTitle],
		Rating: Rating(in[metaRating]),
		Date:   in[metaDate],
		Source: Source(in[metaSource]),
		DocID:  in[metaDocID],
	}
}

// TextUnit is one normalized review ready for embedding. It is never
// modified after ingestion.
type TextUnit struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Candidate is a text unit returned by a similarity search together with its
// stored embedding, which diversity-aware selection needs.
type Candidate struct {
	Unit       TextUnit
	Embedding  []float32
	Similarity float64
}

// Filter restricts a search to units whose metadata match exactly.
// Empty fields do not constrain.
type Filter struct {
	Rating string
	Date   string
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool { return f.Rating == "" && f.Date == "" }

// Where returns the filter as a metadata equality map, or nil when empty.
func (f Filter) Where() map[string]string {
	if f.IsZero() {
		return nil
	}
	where := make(map[string]string, 2)
	if f.Rating != "" {
		where[metaRating] = f.Rating
	}
	if f.Date != "" {
		where[metaDate] = f.Date
	}
	return where
}

// Matches reports whether the metadata satisfies the filter.
func (f Filter) Matches(m Metadata) bool {
	for k, v := range f.Where() {
		if m.Map()[k] != v {
			return false
		}
	}
	return true
}
