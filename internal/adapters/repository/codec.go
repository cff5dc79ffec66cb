package repository

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/pkg/logger"
	"github.com/okian/elorank/pkg/metrics"
)

func encodeRecord(r model.Record) ([]byte, error) {
	return json.Marshal(r)
}

// decodeRecord never fails: undecodable values read as the zero record.
func decodeRecord(ctx context.Context, log logger.Logger, backend, collection, item string, raw []byte) model.Record {
	var r model.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		log.Warn(ctx, "corrupt rating record, using zero record",
			logger.String("backend", backend),
			logger.String("collection", collection),
			logger.String("item", item),
			logger.Error(err),
		)
		metrics.RecordStoreCorruptRead(backend)
		return model.ZeroRecord(item)
	}
	r.ItemID = item
	return r
}
