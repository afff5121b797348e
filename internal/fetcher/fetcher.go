package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// RawRow is one upstream observation with provider-native field names.
type RawRow map[string]string

// RawSeries is the untyped output of one source adapter. Degraded marks a
// synthetic fallback series substituted after a provider failure.
type RawSeries struct {
	Source   string
	Rows     []RawRow
	Degraded bool
}

// SugarFetcher retrieves daily quotes for the tracked sugar futures contract.
type SugarFetcher interface {
	FetchSugar(ctx context.Context) (RawSeries, error)
}

// FXFetcher retrieves the USD/CNY exchange-rate history. Implementations must
// not fail: on provider error they return a degraded constant-rate series.
type FXFetcher interface {
	FetchFX(ctx context.Context, windowDays int) (RawSeries, error)
}

// FreightFetcher retrieves the composite freight index history.
type FreightFetcher interface {
	FetchFreight(ctx context.Context) (RawSeries, error)
}

// decodeRows parses a JSON array of objects into string-keyed rows. Numeric
// values keep their literal representation via json.Number.
func decodeRows(payload []byte) ([]RawRow, error) {
	var generic []map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	rows := make([]RawRow, 0, len(generic))
	for _, obj := range generic {
		row := make(RawRow, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case string:
				row[k] = val
			case json.Number:
				row[k] = val.String()
			case bool:
				row[k] = fmt.Sprintf("%t", val)
			case nil:
				// omitted field, leave absent
			default:
				row[k] = fmt.Sprintf("%v", val)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func parseHTTPError(source string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Message)
		}
		if apiErr.Detail != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Detail)
		}
	}
	return fmt.Errorf("%s api error: unexpected status %d", source, status)
}
