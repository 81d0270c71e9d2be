package warehouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/SebastienMelki/causality-media/internal/events"
	"github.com/SebastienMelki/causality-media/media"
)

// MediaRow is the flattened structure for Parquet storage. Content fields are
// promoted to columns; the full attribute set is kept as JSON.
type MediaRow struct {
	// Envelope fields
	ID          string `parquet:"id,snappy"`
	AppID       string `parquet:"app_id,snappy,dict"`
	Kind        string `parquet:"kind,snappy,dict"`
	EventName   string `parquet:"event_name,snappy,dict"`
	Category    string `parquet:"category,snappy,dict"`
	SessionID   string `parquet:"session_id,snappy,optional"`
	TimestampMS int64  `parquet:"timestamp_ms"`
	SDKVersion  string `parquet:"sdk_version,snappy,optional"`

	// Content fields
	ContentID        string `parquet:"content_id,snappy,optional"`
	ContentTitle     string `parquet:"content_title,snappy,optional"`
	ContentType      string `parquet:"content_type,snappy,dict,optional"`
	StreamType       string `parquet:"stream_type,snappy,dict,optional"`
	PlayheadPosition int64  `parquet:"playhead_position,optional"`

	// All attributes as JSON
	AttributesJSON string `parquet:"attributes_json,snappy"`

	// Partition columns (for Hive partitioning)
	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
	Hour  int `parquet:"hour,dict"`
}

// Partition identifies the object an envelope is archived into.
type Partition struct {
	AppID    string
	Category string
	Year     int
	Month    int
	Day      int
	Hour     int
}

// PartitionOf returns the partition of env, derived from its UTC timestamp.
func PartitionOf(env events.Envelope) Partition {
	ts := env.Timestamp.UTC()
	return Partition{
		AppID:    env.AppID,
		Category: env.Category,
		Year:     ts.Year(),
		Month:    int(ts.Month()),
		Day:      ts.Day(),
		Hour:     ts.Hour(),
	}
}

// MediaRowFromEnvelope converts an envelope to a MediaRow.
func MediaRowFromEnvelope(env events.Envelope) MediaRow {
	p := PartitionOf(env)
	row := MediaRow{
		ID:          env.ID,
		AppID:       env.AppID,
		Kind:        env.Kind,
		EventName:   env.Name,
		Category:    env.Category,
		SessionID:   env.SessionID,
		TimestampMS: env.Timestamp.UnixMilli(),
		SDKVersion:  env.SDKVersion,
		Year:        p.Year,
		Month:       p.Month,
		Day:         p.Day,
		Hour:        p.Hour,
	}

	row.ContentID = stringAttr(env.Attributes, media.KeyContentID)
	row.ContentTitle = stringAttr(env.Attributes, media.KeyTitle)
	row.ContentType = stringAttr(env.Attributes, media.KeyContentType)
	row.StreamType = stringAttr(env.Attributes, media.KeyStreamType)
	row.PlayheadPosition = int64Attr(env.Attributes, media.KeyPlayheadPosition)
	row.AttributesJSON = serializeAttributes(env.Attributes)

	return row
}

func stringAttr(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// int64Attr reads a numeric attribute. Custom events carry numbers as
// strings and decoded JSON carries them as float64.
func int64Attr(attrs map[string]any, key string) int64 {
	switch v := attrs[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func serializeAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return "{}"
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParquetWriter handles writing rows to Parquet format.
type ParquetWriter struct {
	config ParquetConfig
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(cfg ParquetConfig) *ParquetWriter {
	return &ParquetWriter{
		config: cfg,
	}
}

// Write writes a batch of rows to Parquet format and returns the bytes.
func (w *ParquetWriter) Write(rows []MediaRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRowsToWrite
	}

	var buf bytes.Buffer

	writer := parquet.NewGenericWriter[MediaRow](&buf,
		parquet.Compression(w.getCompressionCodec()),
		parquet.CreatedBy("causality-media", media.SDKVersion, ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// getCompressionCodec returns the compression codec based on config.
func (w *ParquetWriter) getCompressionCodec() compress.Codec {
	switch w.config.Compression {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
