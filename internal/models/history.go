package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
)

// HistoryRecord is one past generation owned by the backend.
type HistoryRecord struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	GradeLevel   string        `json:"gradeLevel"`
	ContentTypes []ContentType `json:"contentTypes"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// historyRecordWire accepts both the camelCase contract and the snake_case
// keys the backend actually emits.
type historyRecordWire struct {
	ID                json.RawMessage `json:"id"`
	Subject           string          `json:"subject"`
	GradeLevel        string          `json:"gradeLevel"`
	GradeLevelSnake   string          `json:"grade_level"`
	ContentTypes      json.RawMessage `json:"contentTypes"`
	ContentTypesSnake json.RawMessage `json:"content_types"`
	CreatedAt         string          `json:"createdAt"`
	CreatedAtSnake    string          `json:"created_at"`
}

var historyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	"2006-01-02",
}

// UnmarshalJSON decodes a record from either key convention.
func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	var w historyRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := decodeRecordID(w.ID)
	if err != nil {
		return err
	}
	rec := HistoryRecord{
		ID:         id,
		Subject:    w.Subject,
		GradeLevel: firstNonEmpty(w.GradeLevel, w.GradeLevelSnake),
	}

	rawTypes := w.ContentTypes
	if len(rawTypes) == 0 {
		rawTypes = w.ContentTypesSnake
	}
	rec.ContentTypes, err = decodeRecordTypes(rawTypes)
	if err != nil {
		return err
	}

	if created := firstNonEmpty(w.CreatedAt, w.CreatedAtSnake); created != "" {
		ts, err := parseHistoryTime(created)
		if err != nil {
			return err
		}
		rec.CreatedAt = ts
	}

	*r = rec
	return nil
}

func decodeRecordID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("history record without id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("history record id: %w", err)
	}
	return n.String(), nil
}

// decodeRecordTypes accepts a list of tags or the tag→bool mapping the
// backend stores; mapping keys come back in canonical order.
func decodeRecordTypes(raw json.RawMessage) ([]ContentType, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []ContentType{}, nil
	}
	var list []ContentType
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var set ContentTypeSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("history record content types: %w", err)
	}
	selected := set.Selected()
	for tag, on := range set {
		if on && !tag.Known() {
			selected = append(selected, tag)
		}
	}
	return selected, nil
}

func parseHistoryTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range historyTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("history record createdAt %q not understood", raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// HistoryState is the observable state of the history view.
type HistoryState string

const (
	HistoryIdle    HistoryState = "idle"
	HistoryLoading HistoryState = "loading"
	HistoryError   HistoryState = "error"
	HistorySuccess HistoryState = "success"
)

// HistoryView is what the history page shows.
type HistoryView struct {
	State     HistoryState     `json:"state"`
	Records   []HistoryRecord  `json:"records"`
	Message   string           `json:"message,omitempty"`
	Error     *appErrors.Error `json:"error,omitempty"`
	FetchedAt *time.Time       `json:"fetchedAt,omitempty"`
}
