// Package telemetry extracts cost, token, and span information from the agent
// invoker's raw trace under two attribute conventions (spec §4.6). The extractor
// is pure: it consumes a value and returns a value, with no I/O; any pricing
// lookup is an explicit parameter. It never panics — extraction faults are
// reported in the returned Trace's ExtractionError field.
//
// Span/attribute shape and the gen_ai.* vs llm.* fallback convention are
// grounded on dshills-langgraph-go's OTel semantic-convention usage; this
// package defines its own Span/Trace types rather than depending on
// go.opentelemetry.io/otel directly, since the extractor consumes an opaque
// value from a collaborator interface, not a live OTel SDK span.
package telemetry

import "time"

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Span matches the spec §3 data model entry.
type Span struct {
	Name       string         `json:"name"`
	SpanID     string         `json:"span_id"`
	TraceID    string         `json:"trace_id"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	Kind       string         `json:"kind"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []Event        `json:"events,omitempty"`
}

// CostInfo matches the spec §3 data model entry.
type CostInfo struct {
	TotalCost   float64 `json:"total_cost"`
	TotalTokens int     `json:"total_tokens"`
	InputTokens int     `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Performance is the aggregate block spec §4.6 requires alongside cost_info.
type Performance struct {
	TotalDurationMs float64 `json:"total_duration_ms"`
	TotalCost       float64 `json:"total_cost"`
	TotalTokens     int     `json:"total_tokens"`
	SpanCount       int     `json:"span_count"`
}

// Trace matches the spec §3 data model entry: the fully extracted telemetry
// for one agent/tool invocation.
type Trace struct {
	FinalOutput     string      `json:"final_output"`
	Spans           []Span      `json:"spans"`
	CostInfo        CostInfo    `json:"cost_info"`
	Performance     Performance `json:"performance"`
	ExtractionError string      `json:"extraction_error,omitempty"`
}

// RawSpan is the pre-extraction span shape the agent invoker hands back —
// "a structured record" per spec §4.6. Attributes may carry either the
// gen_ai.* or llm.* convention keys (see spanCost).
type RawSpan struct {
	Name       string
	SpanID     string
	TraceID    string
	StartTime  time.Time
	EndTime    time.Time
	Status     string
	Kind       string
	Attributes map[string]any
	Events     []Event
}

// RawTrace is the agent invoker's output prior to extraction.
type RawTrace struct {
	FinalOutput string
	Spans       []RawSpan
}

// PricingTable is the collaborator §4.6 invokes when tokens are present but all
// observed costs are zero and the model is known.
type PricingTable interface {
	// Price returns per-token input/output cost for modelID, or ok=false when unknown.
	Price(modelID string) (inputPerToken, outputPerToken float64, ok bool)
}

const (
	genAIInputTokens  = "gen_ai.usage.input_tokens"
	genAIOutputTokens = "gen_ai.usage.output_tokens"
	genAIInputCost    = "gen_ai.usage.input_cost"
	genAIOutputCost   = "gen_ai.usage.output_cost"

	llmPromptTokens     = "llm.token_count.prompt"
	llmCompletionTokens = "llm.token_count.completion"
	llmCostPrompt       = "cost_prompt"
	llmCostCompletion   = "cost_completion"
)

// Extract builds a Trace from raw, deriving missing per-span costs from pricing
// when modelID is known. It never panics; malformed input surfaces as
// Trace.ExtractionError instead.
func Extract(raw RawTrace, modelID string, pricing PricingTable) (result Trace) {
	defer func() {
		if r := recover(); r != nil {
			result = Trace{FinalOutput: raw.FinalOutput, ExtractionError: "extraction_error"}
		}
	}()

	spans := make([]Span, 0, len(raw.Spans))
	var totalInputTokens, totalOutputTokens int
	var totalInputCost, totalOutputCost float64
	var earliestStart, latestEnd time.Time

	for _, rs := range raw.Spans {
		inTok, outTok, inCost, outCost := spanCost(rs.Attributes)

		if inTok+outTok > 0 && inCost == 0 && outCost == 0 && modelID != "" && pricing != nil {
			if inPerTok, outPerTok, ok := pricing.Price(modelID); ok {
				inCost = float64(inTok) * inPerTok
				outCost = float64(outTok) * outPerTok
			}
		}

		var durationMs float64
		if !rs.StartTime.IsZero() && !rs.EndTime.IsZero() {
			durationMs = float64(rs.EndTime.Sub(rs.StartTime).Nanoseconds()) / 1e6
		}

		spans = append(spans, Span{
			Name:       rs.Name,
			SpanID:     rs.SpanID,
			TraceID:    rs.TraceID,
			StartTime:  rs.StartTime,
			EndTime:    rs.EndTime,
			DurationMs: durationMs,
			Status:     rs.Status,
			Kind:       rs.Kind,
			Attributes: rs.Attributes,
			Events:     rs.Events,
		})

		totalInputTokens += inTok
		totalOutputTokens += outTok
		totalInputCost += inCost
		totalOutputCost += outCost

		if earliestStart.IsZero() || (!rs.StartTime.IsZero() && rs.StartTime.Before(earliestStart)) {
			earliestStart = rs.StartTime
		}
		if latestEnd.IsZero() || rs.EndTime.After(latestEnd) {
			latestEnd = rs.EndTime
		}
	}

	totalCost := totalInputCost + totalOutputCost
	totalTokens := totalInputTokens + totalOutputTokens

	var totalDuration float64
	if !earliestStart.IsZero() && !latestEnd.IsZero() {
		totalDuration = float64(latestEnd.Sub(earliestStart).Nanoseconds()) / 1e6
	}

	return Trace{
		FinalOutput: raw.FinalOutput,
		Spans:       spans,
		CostInfo: CostInfo{
			TotalCost:    totalCost,
			TotalTokens:  totalTokens,
			InputTokens:  totalInputTokens,
			OutputTokens: totalOutputTokens,
		},
		Performance: Performance{
			TotalDurationMs: totalDuration,
			TotalCost:       totalCost,
			TotalTokens:     totalTokens,
			SpanCount:       len(spans),
		},
	}
}

// spanCost applies the two-convention fallback: gen_ai.* keys take precedence
// over llm.*/cost_* keys when both are present.
func spanCost(attrs map[string]any) (inputTokens, outputTokens int, inputCost, outputCost float64) {
	if attrs == nil {
		return 0, 0, 0, 0
	}

	hasGenAI := false
	if v, ok := asInt(attrs[genAIInputTokens]); ok {
		inputTokens = v
		hasGenAI = true
	}
	if v, ok := asInt(attrs[genAIOutputTokens]); ok {
		outputTokens = v
		hasGenAI = true
	}
	if v, ok := asFloat(attrs[genAIInputCost]); ok {
		inputCost = v
		hasGenAI = true
	}
	if v, ok := asFloat(attrs[genAIOutputCost]); ok {
		outputCost = v
		hasGenAI = true
	}
	if hasGenAI {
		return
	}

	if v, ok := asInt(attrs[llmPromptTokens]); ok {
		inputTokens = v
	}
	if v, ok := asInt(attrs[llmCompletionTokens]); ok {
		outputTokens = v
	}
	if v, ok := asFloat(attrs[llmCostPrompt]); ok {
		inputCost = v
	}
	if v, ok := asFloat(attrs[llmCostCompletion]); ok {
		outputCost = v
	}
	return
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
