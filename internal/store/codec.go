package store

import (
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/vstask/internal/model"
)

func encodeRecord(rec *model.GameRecord) ([]byte, error) {
	if rec.Choices == nil {
		rec.Choices = []model.Choice{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.GameID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.GameRecord, error) {
	var rec model.GameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func encodeSummary(sum model.Summary) ([]byte, error) {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return data, nil
}

func decodeSummary(data []byte) (*model.Summary, error) {
	var sum model.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}
