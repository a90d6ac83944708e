package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/codecrew/workflow/model"
)

// ModelPricing holds token prices in USD per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the models the bundled providers default to.
// Local models are free. Unknown models are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":                  {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":             {InputPer1M: 0.40, OutputPer1M: 1.60},
	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus-latest":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"gemini-2.5-flash-lite":    {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-2.5-flash":         {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-1.5-pro":           {InputPer1M: 1.25, OutputPer1M: 5.00},
	"llama3.1":                 {},
}

// TurnCost is the token usage and cost of one role turn.
type TurnCost struct {
	RunID        string
	Role         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker attributes model spend to runs, roles and models. One tracker
// can be shared by every run of a coordinator.
//
//	tracker := workflow.NewCostTracker()
//	c, _ := workflow.New(reg, inv, workflow.WithCostTracker(tracker))
//	...
//	fmt.Printf("run cost: $%.4f\n", tracker.RunCost(outcome.RunID))
type CostTracker struct {
	mu      sync.RWMutex
	pricing map[string]ModelPricing
	calls   []TurnCost
	total   float64
	byModel map[string]float64
	byRole  map[string]float64
	byRun   map[string]float64
	input   int64
	output  int64
	enabled bool
}

// NewCostTracker returns a tracker using the built-in price table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for name, p := range defaultModelPricing {
		pricing[name] = p
	}
	return &CostTracker{
		pricing: pricing,
		byModel: make(map[string]float64),
		byRole:  make(map[string]float64),
		byRun:   make(map[string]float64),
		enabled: true,
	}
}

// Record adds one turn and returns its cost in USD.
func (ct *CostTracker) Record(runID, role, modelName string, usage model.Usage) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if !ct.enabled {
		return 0
	}

	p := ct.pricing[modelName]
	cost := float64(usage.InputTokens)/1_000_000*p.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*p.OutputPer1M

	ct.calls = append(ct.calls, TurnCost{
		RunID:        runID,
		Role:         role,
		Model:        modelName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	ct.total += cost
	ct.byModel[modelName] += cost
	ct.byRole[role] += cost
	ct.byRun[runID] += cost
	ct.input += int64(usage.InputTokens)
	ct.output += int64(usage.OutputTokens)
	return cost
}

// TotalCost returns the cost of every recorded turn.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// RunCost returns the cost recorded for one run.
func (ct *CostTracker) RunCost(runID string) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.byRun[runID]
}

// CostByModel returns a copy of the per-model totals.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copyCosts(ct.byModel)
}

// CostByRole returns a copy of the per-role totals.
func (ct *CostTracker) CostByRole() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copyCosts(ct.byRole)
}

// Calls returns the recorded turns in order.
func (ct *CostTracker) Calls() []TurnCost {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]TurnCost(nil), ct.calls...)
}

// TokenUsage returns total input and output tokens.
func (ct *CostTracker) TokenUsage() (input, output int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.input, ct.output
}

// SetPricing overrides the price of a model.
func (ct *CostTracker) SetPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops recording.
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable resumes recording after Disable.
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears recorded turns and totals but keeps pricing.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.calls = nil
	ct.total = 0
	ct.byModel = make(map[string]float64)
	ct.byRole = make(map[string]float64)
	ct.byRun = make(map[string]float64)
	ct.input, ct.output = 0, 0
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return fmt.Sprintf("CostTracker{Turns: %d, TotalCost: $%.4f, InputTokens: %d, OutputTokens: %d}",
		len(ct.calls), ct.total, ct.input, ct.output)
}

func copyCosts(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
