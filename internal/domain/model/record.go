// Package model defines the rating domain values shared by the engine, the
// service and the store adapters.
package model

import (
	"maps"
	"slices"
)

// Record is the rating state of one item within one collection.
// The zero record (rating 0, no observations) stands in for absent items.
type Record struct {
	ItemID       string  `json:"item_id"`
	Rating       float64 `json:"rating"`
	Observations int     `json:"observations"`
}

// ZeroRecord returns the record used for items that have never been judged.
func ZeroRecord(itemID string) Record {
	return Record{ItemID: itemID}
}

// Snapshot is an immutable view of a collection's records at one moment.
// The zero value is an empty snapshot.
type Snapshot struct {
	collection string
	records    map[string]Record
}

// NewSnapshot builds a snapshot from records. Later duplicates win.
func NewSnapshot(collection string, records ...Record) Snapshot {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.ItemID] = r
	}
	return Snapshot{collection: collection, records: m}
}

// Collection returns the collection the snapshot belongs to.
func (s Snapshot) Collection() string { return s.collection }

// Get returns the record for id, or the zero record when absent.
func (s Snapshot) Get(id string) Record {
	if r, ok := s.records[id]; ok {
		return r
	}
	return ZeroRecord(id)
}

// Has reports whether id has a stored record.
func (s Snapshot) Has(id string) bool {
	_, ok := s.records[id]
	return ok
}

// Len returns the number of stored records.
func (s Snapshot) Len() int { return len(s.records) }

// With returns a new snapshot with records replaced or added. The receiver
// is left untouched.
func (s Snapshot) With(records ...Record) Snapshot {
	m := make(map[string]Record, len(s.records)+len(records))
	maps.Copy(m, s.records)
	for _, r := range records {
		m[r.ItemID] = r
	}
	return Snapshot{collection: s.collection, records: m}
}

// Records returns the stored records ordered by item id.
func (s Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, id := range s.IDs() {
		out = append(out, s.records[id])
	}
	return out
}

// IDs returns the ids of the stored records in ascending order.
func (s Snapshot) IDs() []string {
	return slices.Sorted(maps.Keys(s.records))
}

// Equal reports whether both snapshots hold the same records.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.collection == other.collection && maps.Equal(s.records, other.records)
}

// Restrict returns a snapshot holding a record for each of ids, filling in
// zero records for items that were never judged.
func (s Snapshot) Restrict(ids []string) Snapshot {
	m := make(map[string]Record, len(ids))
	for _, id := range ids {
		m[id] = s.Get(id)
	}
	return Snapshot{collection: s.collection, records: m}
}
