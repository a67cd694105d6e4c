package simulator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulateFull(t *testing.T) *Result {
	t.Helper()

	engine, _ := newTestEngine(t, catchingSnapshot(), nil)

	req := baseRequest()
	req.InstructionTrace = true
	req.TransactionHash = "0x" + strings.Repeat("ab", 32)

	res, err := engine.Simulate(context.Background(), req)
	require.NoError(t, err)

	return res
}

func TestRenderRoundTrip(t *testing.T) {
	res := simulateFull(t)

	for _, format := range []Format{FormatStructured, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			rendered, err := Render(res, format)
			require.NoError(t, err)
			assert.Equal(t, format, rendered.Format)

			parsed, err := Parse(rendered)
			require.NoError(t, err)
			assert.Equal(t, res, parsed)
		})
	}
}

func TestRenderRoundTripMinimal(t *testing.T) {
	res := &Result{Success: true, ReturnData: bytesOf(nil)}

	rendered, err := Render(res, FormatJSON)
	require.NoError(t, err)

	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, res, parsed)
}

func TestRenderJSONShape(t *testing.T) {
	res := simulateFull(t)

	rendered, err := Render(res, FormatJSON)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rendered.JSON, &raw))

	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "0x"+strings.Repeat("00", 32), raw["return_data"])
	assert.Equal(t, "0", raw["value"])
	assert.Contains(t, raw, "call_trace")
	assert.Contains(t, raw, "state_diff")
	assert.Contains(t, raw, "instruction_trace")
	assert.Equal(t, false, raw["trace_truncated"])
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(&Result{}, Format("xml"))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Parse(&Rendered{Format: "xml"})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON([]byte(`{"value":"-3"}`))
	assert.Error(t, err)
}

func TestAmountText(t *testing.T) {
	var a Amount
	require.NoError(t, a.UnmarshalText([]byte("115792089237316195423570985008687907853269984665640564039457584007913129639935")))

	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", string(text))
	assert.Error(t, a.UnmarshalText([]byte("0x10")))
}
