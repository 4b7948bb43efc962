// Package mapper converts raw gazetteer index records into canonical
// entries. Each gazetteer has a Schema binding canonical entry fields to index
// field names, or to field positions for indexes whose names are unknown.
package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
)

// Canonical entry fields a schema can bind.
const (
	ItemID       = "itemID"
	ItemName     = "itemName"
	ItemType     = "itemType"
	ItemParentID = "itemParentID"
	Latitude     = "latitude"
	Longitude    = "longitude"
)

var canonical = []string{ItemID, ItemName, ItemType, ItemParentID, Latitude, Longitude}

// Binding locates one canonical field in a raw record, either by Name or, when
// Name is empty, by Position.
type Binding struct {
	Name     string
	Position int
}

func (b Binding) String() string {
	if b.Name != "" {
		return b.Name
	}
	return "#" + strconv.Itoa(b.Position)
}

// Schema describes how one gazetteer's records map onto entries. ParentID,
// when set, fixes ItemParentID for every entry (single-country gazetteers).
type Schema struct {
	Source   gazetteer.Source
	ParentID string
	Bindings map[string]Binding
}

// GeonamesSchema binds the GNS field names.
func GeonamesSchema() *Schema {
	return &Schema{
		Source: gazetteer.SourceGeonames,
		Bindings: map[string]Binding{
			ItemID:       {Name: "UFI"},
			Latitude:     {Name: "LAT"},
			Longitude:    {Name: "LONG"},
			ItemType:     {Name: "DSG"},
			ItemParentID: {Name: "CC1"},
			ItemName:     {Name: "FULL_NAME_ND_RO"},
		},
	}
}

// USGSSchema binds the GNIS national file field names.
func USGSSchema() *Schema {
	return &Schema{
		Source:   gazetteer.SourceUSGS,
		ParentID: "us",
		Bindings: map[string]Binding{
			ItemID:    {Name: "FEATURE_ID"},
			ItemName:  {Name: "FEATURE_NAME"},
			ItemType:  {Name: "FEATURE_CLASS"},
			Latitude:  {Name: "PRIM_LAT_DEC"},
			Longitude: {Name: "PRIM_LONG_DEC"},
		},
	}
}

// GeonamesPositions is the legacy positional contract of the global index.
func GeonamesPositions() *Schema {
	return positional(gazetteer.SourceGeonames, "", map[string]int{
		ItemID: 1, Latitude: 3, Longitude: 4, ItemType: 10, ItemParentID: 12, ItemName: 23,
	})
}

// USGSPositions is the legacy positional contract of the national index.
func USGSPositions() *Schema {
	return positional(gazetteer.SourceUSGS, "us", map[string]int{
		ItemID: 0, ItemName: 1, ItemType: 2, Latitude: 9, Longitude: 10,
	})
}

func positional(source gazetteer.Source, parentID string, positions map[string]int) *Schema {
	s := &Schema{Source: source, ParentID: parentID, Bindings: make(map[string]Binding, len(positions))}
	for field, pos := range positions {
		s.Bindings[field] = Binding{Position: pos}
	}
	return s
}

// FromConfig builds a schema from gazetteer configuration, starting from the
// named defaults and replacing the bindings when fields or positions are set.
func FromConfig(source gazetteer.Source, cfg config.GazetteerConfig) (*Schema, error) {
	var s *Schema
	switch source {
	case gazetteer.SourceGeonames:
		s = GeonamesSchema()
	case gazetteer.SourceUSGS:
		s = USGSSchema()
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownGazetteer, source)
	}
	if cfg.ParentID != "" {
		s.ParentID = strings.ToLower(cfg.ParentID)
	}
	switch {
	case len(cfg.Fields) > 0:
		s.Bindings = make(map[string]Binding, len(cfg.Fields))
		for field, name := range cfg.Fields {
			s.Bindings[field] = Binding{Name: name}
		}
	case len(cfg.Positions) > 0:
		s.Bindings = make(map[string]Binding, len(cfg.Positions))
		for field, pos := range cfg.Positions {
			s.Bindings[field] = Binding{Position: pos}
		}
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// check verifies the schema binds only known fields and everything required.
func (s *Schema) check() error {
	for field, b := range s.Bindings {
		if !isCanonical(field) {
			return fmt.Errorf("%w: %s: unknown entry field %q", apperrors.ErrSchemaMismatch, s.Source, field)
		}
		if b.Name == "" && b.Position < 0 {
			return fmt.Errorf("%w: %s: negative position for %q", apperrors.ErrSchemaMismatch, s.Source, field)
		}
	}
	required := []string{ItemID, ItemName, Latitude, Longitude}
	if s.ParentID == "" {
		required = append(required, ItemParentID)
	}
	for _, field := range required {
		if _, ok := s.Bindings[field]; !ok {
			return fmt.Errorf("%w: %s: %q is not bound", apperrors.ErrSchemaMismatch, s.Source, field)
		}
	}
	return nil
}

// Validate checks the schema against the field names an index reports, so a
// reordered or renamed index fails at startup rather than mis-mapping.
func (s *Schema) Validate(available []string) error {
	names := make(map[string]struct{}, len(available))
	for _, n := range available {
		names[n] = struct{}{}
	}
	var missing []string
	for field, b := range s.Bindings {
		if b.Name != "" {
			if _, ok := names[b.Name]; !ok {
				missing = append(missing, fmt.Sprintf("%s->%s", field, b.Name))
			}
			continue
		}
		if b.Position >= len(available) {
			missing = append(missing, fmt.Sprintf("%s->%s", field, b))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s index lacks %s", apperrors.ErrSchemaMismatch, s.Source, strings.Join(missing, ", "))
	}
	return nil
}

func isCanonical(field string) bool {
	for _, c := range canonical {
		if c == field {
			return true
		}
	}
	return false
}

// Mapper maps raw records of one gazetteer.
type Mapper struct {
	schema *Schema
}

func New(schema *Schema) *Mapper {
	return &Mapper{schema: schema}
}

// Schema returns the mapper's schema.
func (m *Mapper) Schema() *Schema {
	return m.schema
}

// Map builds an entry from a raw record. Values are lower-cased and every
// field is copied into IndexData. A missing, unparseable or out-of-range
// coordinate fails the record.
func (m *Mapper) Map(docID string, score float64, fields []searcher.Field) (*gazetteer.Entry, error) {
	entry := gazetteer.New(m.schema.Source, docID)
	entry.ScoreMap[gazetteer.ScoreLucene] = score
	entry.ScoreMap[gazetteer.ScoreRawLucene] = score

	values := make([]string, len(fields))
	for i, f := range fields {
		values[i] = strings.ToLower(f.Value)
		entry.IndexData[f.Name] = values[i]
	}
	lookup := func(field string) (string, bool) {
		b, ok := m.schema.Bindings[field]
		if !ok {
			return "", false
		}
		if b.Name != "" {
			v, ok := entry.IndexData[b.Name]
			return v, ok
		}
		if b.Position < len(values) {
			return values[b.Position], true
		}
		return "", false
	}

	id, _ := lookup(ItemID)
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("doc %s: %w: %s", docID, apperrors.ErrMissingField, ItemID)
	}
	entry.ItemID = id
	entry.ItemName, _ = lookup(ItemName)
	entry.ItemType, _ = lookup(ItemType)
	if m.schema.ParentID != "" {
		entry.ItemParentID = m.schema.ParentID
	} else {
		entry.ItemParentID, _ = lookup(ItemParentID)
	}

	lat, err := coordinate(lookup, Latitude)
	if err != nil {
		return nil, fmt.Errorf("doc %s: %w", docID, err)
	}
	lng, err := coordinate(lookup, Longitude)
	if err != nil {
		return nil, fmt.Errorf("doc %s: %w", docID, err)
	}
	if !s2.LatLngFromDegrees(lat, lng).IsValid() {
		return nil, fmt.Errorf("doc %s: %w: (%v, %v) out of range", docID, apperrors.ErrInvalidCoordinate, lat, lng)
	}
	entry.Latitude = lat
	entry.Longitude = lng
	return entry, nil
}

func coordinate(lookup func(string) (string, bool), field string) (float64, error) {
	raw, ok := lookup(field)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrMissingField, field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", apperrors.ErrInvalidCoordinate, field, raw)
	}
	return v, nil
}
