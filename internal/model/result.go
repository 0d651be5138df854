package model

import "time"

// Status records whether any post referencing a wallet was found.
type Status string

const (
	StatusTrue  Status = "true"
	StatusFalse Status = "false"
)

// Confidence is the categorical strength of a wallet-to-account link.
// The zero value means no level was determined.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
	ConfidenceNone   Confidence = "None"
)

// Valid reports whether c is one of the four canonical levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return true
	}
	return false
}

// OrDefault returns c, or def when c is unset.
func (c Confidence) OrDefault(def Confidence) Confidence {
	if c == "" {
		return def
	}
	return c
}

// OwnershipResult is the parsed output of the ownership analysis stage.
type OwnershipResult struct {
	Username    string     `json:"username,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty"`
	RawResponse string     `json:"raw_response"`
	Error       string     `json:"error,omitempty"`
}

// InferenceResult is the outcome of evaluating one wallet.
//
// Status false implies an empty Username and ConfidenceNone. Status true
// implies a non-empty Confidence.
type InferenceResult struct {
	Row               int        `json:"row"`
	Address           string     `json:"address"`
	Status            Status     `json:"status"`
	Username          string     `json:"username,omitempty"`
	Confidence        Confidence `json:"confidence,omitempty"`
	RawResponse       string     `json:"raw_response"`
	ExistenceResponse string     `json:"existence_response,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Found reports whether a post referencing the wallet exists.
func (r InferenceResult) Found() bool {
	return r.Status == StatusTrue
}

// Handle returns the username with its leading marker, or "".
func (r InferenceResult) Handle() string {
	if r.Username == "" {
		return ""
	}
	return "@" + r.Username
}

// RunSummary aggregates the outcome of processing one worksheet.
type RunSummary struct {
	Worksheet        string        `json:"worksheet" yaml:"worksheet"`
	Processed        int           `json:"processed" yaml:"processed"`
	Found            int           `json:"found" yaml:"found"`
	NoPosts          int           `json:"no_posts" yaml:"no_posts"`
	Errors           int           `json:"errors" yaml:"errors"`
	Failed           int           `json:"failed" yaml:"failed"`
	Elapsed          time.Duration `json:"elapsed" yaml:"elapsed"`
	PerSecond        float64       `json:"per_second" yaml:"per_second"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
}

// Summarize counts results by outcome. A result counts as an error when
// it carries diagnostic text, independent of its status.
func Summarize(worksheet string, results []InferenceResult, elapsed time.Duration) RunSummary {
	s := RunSummary{Worksheet: worksheet, Processed: len(results), Elapsed: elapsed}
	for _, r := range results {
		switch r.Status {
		case StatusTrue:
			s.Found++
		case StatusFalse:
			s.NoPosts++
		}
		if r.Error != "" {
			s.Errors++
		}
	}
	if elapsed > 0 {
		s.PerSecond = float64(s.Processed) / elapsed.Seconds()
	}
	return s
}
