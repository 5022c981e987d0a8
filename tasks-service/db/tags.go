package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Tags are kept in a single TEXT column as a JSON array, which preserves
// order. An empty list is stored as NULL.
func encodeTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeTags(raw sql.NullString) ([]string, error) {
	tags := []string{}
	if !raw.Valid || raw.String == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags %q: %w", raw.String, err)
	}
	return tags, nil
}
