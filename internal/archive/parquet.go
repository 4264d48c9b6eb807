package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/vector"
)

type parquetRecord struct {
	ID                 string `parquet:"id"`
	Question           string `parquet:"question"`
	NormalizedQuestion string `parquet:"normalized_question"`
	SQLQuery           string `parquet:"sql_query"`
	Embedding          []byte `parquet:"embedding"`
	Readonly           bool   `parquet:"readonly"`
	CreatedAtUnixMs    int64  `parquet:"created_at_unix_ms"`
}

// EncodeRecords serializes cache records to a parquet payload for
// archival. Embeddings are stored in the same byte layout the cache
// itself uses.
func EncodeRecords(records []cache.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}

	rows := make([]parquetRecord, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetRecord{
			ID:                 record.ID,
			Question:           record.Question,
			NormalizedQuestion: record.NormalizedQuestion,
			SQLQuery:           record.SQLQuery,
			Embedding:          vector.Encode(record.Embedding),
			Readonly:           record.Readonly,
			CreatedAtUnixMs:    record.CreatedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecords parses an archived parquet payload back into cache
// records.
func DecodeRecords(data []byte) ([]cache.Record, error) {
	rows, err := parquet.Read[parquetRecord](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	records := make([]cache.Record, 0, len(rows))
	for _, row := range rows {
		embedding, err := vector.Decode(row.Embedding)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for record %s: %w", row.ID, err)
		}
		records = append(records, cache.Record{
			ID:                 row.ID,
			Question:           row.Question,
			NormalizedQuestion: row.NormalizedQuestion,
			SQLQuery:           row.SQLQuery,
			Embedding:          embedding,
			Readonly:           row.Readonly,
			CreatedAt:          time.UnixMilli(row.CreatedAtUnixMs).UTC(),
		})
	}
	return records, nil
}
