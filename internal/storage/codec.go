package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/alarmd/internal/model"
)

const documentVersion = 1

type document struct {
	Version int               `json:"version"`
	Alarms  []json.RawMessage `json:"alarms"`
}

// encodeDocument renders the alarm set as an indented JSON document. The
// output is a pure function of the input so a load/save cycle is stable.
func encodeDocument(alarms []model.Alarm) ([]byte, error) {
	doc := document{Version: documentVersion, Alarms: make([]json.RawMessage, 0, len(alarms))}
	for _, a := range alarms {
		raw, err := encodeRecord(a)
		if err != nil {
			return nil, err
		}
		doc.Alarms = append(doc.Alarms, raw)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// decodeDocument decodes every record it can. Records that fail to decode
// or validate are skipped and logged; only an unreadable envelope is fatal.
func decodeDocument(raw []byte, logger *slog.Logger) ([]model.Alarm, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []model.Alarm{}, nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make([]model.Alarm, 0, len(doc.Alarms))
	seen := make(map[string]bool, len(doc.Alarms))
	for i, rec := range doc.Alarms {
		a, err := decodeRecord(rec)
		if err != nil {
			logger.Warn("skipping unreadable alarm record", "index", i, "error", err)
			continue
		}
		if seen[a.ID] {
			logger.Warn("skipping duplicate alarm record", "index", i, "alarm_id", a.ID)
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, nil
}

func encodeRecord(a model.Alarm) ([]byte, error) {
	return json.Marshal(a)
}

func decodeRecord(raw []byte) (model.Alarm, error) {
	var a model.Alarm
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Alarm{}, err
	}
	a = model.Normalize(a)
	if err := a.Validate(); err != nil {
		return model.Alarm{}, err
	}
	return a, nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
