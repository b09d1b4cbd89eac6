package telemetry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/orchestrator/internal/telemetry"
)

type fakePricing struct {
	inPerTok, outPerTok float64
	known               bool
}

func (f fakePricing) Price(modelID string) (float64, float64, bool) {
	return f.inPerTok, f.outPerTok, f.known
}

func TestExtract_GenAIConvention(t *testing.T) {
	start := time.Now()
	raw := telemetry.RawTrace{
		FinalOutput: "done",
		Spans: []telemetry.RawSpan{{
			Name: "llm-call", SpanID: "s1", TraceID: "t1",
			StartTime: start, EndTime: start.Add(500 * time.Millisecond),
			Attributes: map[string]any{
				"gen_ai.usage.input_tokens":  10,
				"gen_ai.usage.output_tokens": 20,
				"gen_ai.usage.input_cost":    0.001,
				"gen_ai.usage.output_cost":   0.002,
			},
		}},
	}

	trace := telemetry.Extract(raw, "gpt-4o-mini", nil)
	assert.Equal(t, 10, trace.CostInfo.InputTokens)
	assert.Equal(t, 20, trace.CostInfo.OutputTokens)
	assert.Equal(t, 30, trace.CostInfo.TotalTokens)
	assert.InDelta(t, 0.003, trace.CostInfo.TotalCost, 1e-9)
	assert.Equal(t, 1, trace.Performance.SpanCount)
	assert.InDelta(t, 500, trace.Spans[0].DurationMs, 0.001)
}

func TestExtract_LLMConventionFallback(t *testing.T) {
	raw := telemetry.RawTrace{
		Spans: []telemetry.RawSpan{{
			Attributes: map[string]any{
				"llm.token_count.prompt":     5,
				"llm.token_count.completion": 7,
				"cost_prompt":                0.0001,
				"cost_completion":            0.0002,
			},
		}},
	}

	trace := telemetry.Extract(raw, "", nil)
	assert.Equal(t, 5, trace.CostInfo.InputTokens)
	assert.Equal(t, 7, trace.CostInfo.OutputTokens)
	assert.InDelta(t, 0.0003, trace.CostInfo.TotalCost, 1e-9)
}

func TestExtract_GenAITakesPrecedenceOverLLM(t *testing.T) {
	raw := telemetry.RawTrace{
		Spans: []telemetry.RawSpan{{
			Attributes: map[string]any{
				"gen_ai.usage.input_tokens": 100,
				"llm.token_count.prompt":    1,
			},
		}},
	}

	trace := telemetry.Extract(raw, "", nil)
	assert.Equal(t, 100, trace.CostInfo.InputTokens)
}

func TestExtract_PricingFallbackWhenTokensPresentButZeroCost(t *testing.T) {
	raw := telemetry.RawTrace{
		Spans: []telemetry.RawSpan{{
			Attributes: map[string]any{
				"gen_ai.usage.input_tokens":  1000,
				"gen_ai.usage.output_tokens": 500,
			},
		}},
	}

	trace := telemetry.Extract(raw, "gpt-4o-mini", fakePricing{inPerTok: 0.001, outPerTok: 0.002, known: true})
	assert.InDelta(t, 1.0+1.0, trace.CostInfo.TotalCost, 1e-9) // 1000*0.001 + 500*0.002
}

func TestExtract_UnknownModelStaysZeroCost(t *testing.T) {
	raw := telemetry.RawTrace{
		Spans: []telemetry.RawSpan{{
			Attributes: map[string]any{
				"gen_ai.usage.input_tokens": 1000,
			},
		}},
	}

	trace := telemetry.Extract(raw, "unknown-model", fakePricing{known: false})
	assert.Equal(t, 0.0, trace.CostInfo.TotalCost)
}

func TestExtract_AggregatesAcrossMultipleSpans(t *testing.T) {
	raw := telemetry.RawTrace{
		Spans: []telemetry.RawSpan{
			{Attributes: map[string]any{"gen_ai.usage.input_tokens": 10, "gen_ai.usage.input_cost": 0.01}},
			{Attributes: map[string]any{"gen_ai.usage.input_tokens": 20, "gen_ai.usage.input_cost": 0.02}},
		},
	}

	trace := telemetry.Extract(raw, "", nil)
	assert.Equal(t, 30, trace.CostInfo.InputTokens)
	assert.InDelta(t, 0.03, trace.CostInfo.TotalCost, 1e-9)
	assert.Equal(t, 2, trace.Performance.SpanCount)
}

func TestExtract_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.Extract(telemetry.RawTrace{Spans: []telemetry.RawSpan{{Attributes: nil}}}, "", nil)
	})
}
