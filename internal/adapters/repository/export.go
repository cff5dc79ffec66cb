package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/okian/elorank/internal/domain/types"
)

// ExportDocument is the on-disk form of an exported collection.
type ExportDocument struct {
	Collection string           `json:"collection"`
	ExportedAt time.Time        `json:"exported_at"`
	Standings  []types.Standing `json:"standings"`
}

// Export writes a collection's standings to path as JSON. The file is
// fsynced and renamed into place, so readers see the old or the new
// document, never a partial one. When items is non-empty, only those items
// are exported, with unrated ones as zero records.
func Export(ctx context.Context, s Store, collection, path string, items ...string) (ExportDocument, error) {
	snap, err := s.Snapshot(ctx, collection)
	if err != nil {
		return ExportDocument{}, err
	}
	if len(items) > 0 {
		snap = snap.Restrict(items)
	}
	doc := ExportDocument{
		Collection: collection,
		ExportedAt: time.Now().UTC(),
		Standings:  types.BuildStandings(snap.Records()),
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return ExportDocument{}, fmt.Errorf("create pending export file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return ExportDocument{}, fmt.Errorf("write export data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return ExportDocument{}, fmt.Errorf("atomically replace export file: %w", err)
	}
	return doc, nil
}
