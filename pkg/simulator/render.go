package simulator

import (
	"encoding/json"
	"fmt"
)

// Format selects how a Result is handed back to the caller.
type Format string

const (
	// FormatStructured returns the Result object itself.
	FormatStructured Format = "structured"
	// FormatJSON returns the Result serialized as JSON text.
	FormatJSON Format = "json"
)

// Rendered is a Result in the caller's requested representation. Exactly
// one of Result and JSON is set.
type Rendered struct {
	Format Format
	Result *Result
	JSON   []byte
}

// Render projects res into format. Both formats carry the same information.
func Render(res *Result, format Format) (*Rendered, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nothing to render", ErrInvariant)
	}

	switch format {
	case FormatStructured, "":
		return &Rendered{Format: FormatStructured, Result: res}, nil
	case FormatJSON:
		data, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}

		return &Rendered{Format: FormatJSON, JSON: data}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

// Parse recovers the Result from a rendered value.
func Parse(r *Rendered) (*Result, error) {
	if r == nil {
		return nil, fmt.Errorf("nothing to parse")
	}

	switch r.Format {
	case FormatStructured:
		if r.Result == nil {
			return nil, fmt.Errorf("structured rendering without result")
		}

		return r.Result, nil
	case FormatJSON:
		return ParseJSON(r.JSON)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, r.Format)
	}
}

// ParseJSON decodes a Result from its JSON text.
func ParseJSON(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	return &res, nil
}
