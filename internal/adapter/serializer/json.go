// Package serializer renders reports as wire text.
package serializer

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/V4T54L/faultline/internal/domain"
)

// JSON encodes reports as compact JSON objects.
type JSON struct{}

// NewJSON creates a JSON serializer.
func NewJSON() *JSON { return &JSON{} }

// Serialize encodes report.
func (JSON) Serialize(report domain.Report) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report %s: %w", report.ID, err)
	}
	return data, nil
}
