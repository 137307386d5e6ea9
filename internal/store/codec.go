package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire helpers for the SQLite boundary. Positions are stored as a JSON array
// and build metadata as key/value rows.

const (
	metaGeneration = "generation"
	metaBuiltAt    = "built_at"
	metaSchema     = "schema_version"
	// metaCommitSeq counts committed writes across every process.
	metaCommitSeq = "commit_seq"

	schemaVersion = "1"
)

func encodePositions(positions []int) (string, error) {
	if len(positions) == 0 {
		return "", nil
	}
	b, err := json.Marshal(positions)
	if err != nil {
		return "", fmt.Errorf("encode positions: %w", err)
	}
	return string(b), nil
}

func decodePositions(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var positions []int
	if err := json.Unmarshal([]byte(raw), &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
