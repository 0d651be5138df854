// Package cost estimates provider spend from reported token and search usage.
package cost

import (
	"sync"

	"github.com/sells-group/wallet-search-cli/internal/inference"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	XAI        map[string]ModelRate `yaml:"xai" mapstructure:"xai"`
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	// XAISearchSource is the Live Search price per source used.
	XAISearchSource float64 `yaml:"xai_search_source" mapstructure:"xai_search_source"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// tokens prices token usage against a model table. Unknown models cost 0.
func tokens(table map[string]ModelRate, model string, input, output int64) float64 {
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Grok computes the cost of an xAI call including Live Search sources.
func (c *Calculator) Grok(model string, input, output, sources int64) float64 {
	return tokens(c.rates.XAI, model, input, output) + float64(sources)*c.rates.XAISearchSource
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	return tokens(c.rates.Anthropic, model, input, output)
}

// PerplexityQuery returns the cost of one Perplexity query.
func (c *Calculator) PerplexityQuery(input, output int64) float64 {
	return c.rates.Perplexity.PerQuery + (float64(input+output)/1e6)*c.rates.Perplexity.PerMTok
}

// Usage prices a single completion.
func (c *Calculator) Usage(u inference.Usage) float64 {
	switch u.Provider {
	case inference.ProviderXAI:
		return c.Grok(u.Model, u.InputTokens, u.OutputTokens, u.Sources)
	case inference.ProviderAnthropic:
		return c.Claude(u.Model, u.InputTokens, u.OutputTokens)
	case inference.ProviderPerplexity:
		return c.PerplexityQuery(u.InputTokens, u.OutputTokens)
	default:
		return 0
	}
}

// Totals aggregates usage across a process.
type Totals struct {
	Calls        int64   `json:"calls" yaml:"calls"`
	InputTokens  int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
	Sources      int64   `json:"sources" yaml:"sources"`
	USD          float64 `json:"usd" yaml:"usd"`
}

// Meter accumulates the estimated spend of every successful completion. It
// is safe for concurrent use.
type Meter struct {
	calc *Calculator

	mu          sync.Mutex
	totals      Totals
	byWorksheet map[string]float64
}

// NewMeter creates a Meter.
func NewMeter(calc *Calculator) *Meter {
	return &Meter{calc: calc, byWorksheet: make(map[string]float64)}
}

// ObserveCall is a no-op; only usage carries cost.
func (m *Meter) ObserveCall(inference.Stage, inference.Outcome) {}

// ObserveUsage adds the cost of one completion.
func (m *Meter) ObserveUsage(_ inference.Stage, u inference.Usage) {
	usd := m.calc.Usage(u)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.Calls++
	m.totals.InputTokens += u.InputTokens
	m.totals.OutputTokens += u.OutputTokens
	m.totals.Sources += u.Sources
	m.totals.USD += usd
	if u.Worksheet != "" {
		m.byWorksheet[u.Worksheet] += usd
	}
}

// WorksheetUSD returns the estimate attributed to one worksheet.
func (m *Meter) WorksheetUSD(worksheet string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byWorksheet[worksheet]
}

// Totals returns a snapshot of the accumulated usage.
func (m *Meter) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		XAI: map[string]ModelRate{
			"grok-4-fast":               {Input: 0.20, Output: 0.50},
			"grok-4-fast-reasoning":     {Input: 0.20, Output: 0.50},
			"grok-4-fast-non-reasoning": {Input: 0.20, Output: 0.50},
			"grok-4":                    {Input: 3.00, Output: 15.00},
			"grok-3":                    {Input: 3.00, Output: 15.00},
			"grok-3-mini":               {Input: 0.30, Output: 0.50},
		},
		XAISearchSource: 0.025,
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, PerMTok: 1.00},
	}
}
