// Package llm holds what the generation backends share.
package llm

// Params are the fixed sampling parameters a model handle is created with.
type Params struct {
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	MaxTokens     int
}

// DefaultParams returns the sampling parameters used when none are configured.
func DefaultParams() Params {
	return Params{Temperature: 0.1, TopP: 0.9, RepeatPenalty: 1.1, MaxTokens: 300}
}
