package monitor

import (
	"context"
	"encoding/json"
	"fmt"
)

const reportPrefix = "reports/regression"

// ObjectStore is where regression reports are archived.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// ReportKey is the object key of a report.
func ReportKey(id string) string {
	return fmt.Sprintf("%s/%s.json", reportPrefix, id)
}

// Archive uploads report as indented JSON and returns its key.
func Archive(ctx context.Context, store ObjectStore, report *Report) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report %s: %w", report.ID, err)
	}
	key := ReportKey(report.ID)
	if err := store.PutObject(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("archive report %s: %w", report.ID, err)
	}
	return key, nil
}
