// Package gazetteer defines the canonical candidate record returned by
// gazetteer lookups.
package gazetteer

import (
	"maps"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// Source identifies the gazetteer an entry was drawn from.
type Source string

const (
	SourceGeonames Source = "geonames"
	SourceUSGS     Source = "usgs"
)

// Score map keys.
const (
	ScoreLucene    = "lucene"
	ScoreRawLucene = "rawlucene"
	ScoreFuzzy     = "fuzzy"
)

const geohashPrecision = 9

// Entry is one candidate place record.
type Entry struct {
	ItemID       string             `json:"item_id"`
	ItemName     string             `json:"item_name"`
	ItemType     string             `json:"item_type"`
	ItemParentID string             `json:"item_parent_id"`
	Latitude     float64            `json:"latitude"`
	Longitude    float64            `json:"longitude"`
	IndexID      string             `json:"index_id"`
	Source       Source             `json:"source"`
	ScoreMap     map[string]float64 `json:"score_map"`
	IndexData    map[string]string  `json:"index_data"`
}

// New returns an Entry with initialised score and index-data maps.
func New(source Source, indexID string) *Entry {
	return &Entry{
		Source:    source,
		IndexID:   indexID,
		ScoreMap:  make(map[string]float64, 3),
		IndexData: make(map[string]string),
	}
}

// Key is the deduplication identity of the entry: two entries from the same
// gazetteer with the same item ID are the same candidate.
func (e *Entry) Key() string {
	return string(e.Source) + ":" + e.ItemID
}

// Score returns the named score, or zero when it is absent.
func (e *Entry) Score(name string) float64 {
	return e.ScoreMap[name]
}

// Geohash encodes the entry's coordinates.
func (e *Entry) Geohash() string {
	return geohash.EncodeWithPrecision(e.Latitude, e.Longitude, geohashPrecision)
}

// Clone returns a deep copy so cached lists cannot be mutated through a
// returned value.
func (e Entry) Clone() Entry {
	e.ScoreMap = maps.Clone(e.ScoreMap)
	e.IndexData = maps.Clone(e.IndexData)
	return e
}

// CloneAll deep-copies a result list. A nil input yields an empty list.
func CloneAll(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
	}
	return out
}
