// Package inference runs the two provider queries behind a wallet
// evaluation: the existence check and the ownership analysis.
package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wallet-search-cli/internal/interpret"
	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/ratelimit"
	"github.com/sells-group/wallet-search-cli/internal/resilience"
)

// Stage names a provider query.
type Stage string

const (
	StageExistence Stage = "existence"
	StageOwnership Stage = "ownership"
)

// Outcome classifies a single provider attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeError       Outcome = "error"
)

const (
	msgMaxRetries      = "Max retries exceeded"
	msgUnparsedHandle  = "Could not parse username"
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	logResponsePreview = 200
)

// Prompt is a single request to the provider.
type Prompt struct {
	Text string
	// Search asks the provider to ground the answer in a live search of
	// social posts when it supports one.
	Search bool
}

// Usage reports what a completion consumed, for cost accounting.
type Usage struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Sources      int64
	// Worksheet is the label attached with WithWorksheet, or "".
	Worksheet string
}

type worksheetKey struct{}

// WithWorksheet labels ctx so usage observed under it is attributed to
// worksheet.
func WithWorksheet(ctx context.Context, worksheet string) context.Context {
	return context.WithValue(ctx, worksheetKey{}, worksheet)
}

// WorksheetFrom returns the label set by WithWorksheet, or "".
func WorksheetFrom(ctx context.Context) string {
	name, _ := ctx.Value(worksheetKey{}).(string)
	return name
}

// Completion is the provider's free-text answer.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer is the opaque text-completion/search provider.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Observer receives per-attempt outcomes and usage.
type Observer interface {
	ObserveCall(stage Stage, outcome Outcome)
	ObserveUsage(stage Stage, usage Usage)
}

// Observers fans calls out to several observers.
type Observers []Observer

func (o Observers) ObserveCall(stage Stage, outcome Outcome) {
	for _, obs := range o {
		obs.ObserveCall(stage, outcome)
	}
}

func (o Observers) ObserveUsage(stage Stage, usage Usage) {
	for _, obs := range o {
		obs.ObserveUsage(stage, usage)
	}
}

// Config controls the retry policy.
type Config struct {
	// MaxRetries is the total number of attempts per query. Default: 3.
	MaxRetries int
	// RetryBaseDelay is scaled linearly by attempt for non rate-limit
	// failures: (attempt+1)*RetryBaseDelay. Default: 2s.
	RetryBaseDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the retry policy.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		if cfg.MaxRetries > 0 {
			c.cfg.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryBaseDelay > 0 {
			c.cfg.RetryBaseDelay = cfg.RetryBaseDelay
		}
	}
}

// WithPrompts overrides the built-in prompts.
func WithPrompts(p *PromptSet) Option {
	return func(c *Client) {
		if p != nil {
			c.prompts = p
		}
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithSleeper overrides the linear retry wait.
func WithSleeper(s ratelimit.Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// Client issues the existence and ownership queries with retries. Rate
// limit waits are delegated to the shared Limiter.
type Client struct {
	completer Completer
	limiter   *ratelimit.Limiter
	prompts   *PromptSet
	observer  Observer
	sleep     ratelimit.Sleeper
	cfg       Config
}

// New creates a Client.
func New(completer Completer, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		completer: completer,
		limiter:   limiter,
		prompts:   DefaultPrompts(),
		sleep:     ratelimit.Sleep,
		cfg: Config{
			MaxRetries:     defaultMaxRetries,
			RetryBaseDelay: defaultRetryDelay,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CheckExistence asks whether any post contains the exact address. An
// ambiguous answer resolves to false. Provider failures that exhaust the
// retries also resolve to false, with the failure text as the raw
// response. Only context cancellation is returned as an error.
func (c *Client) CheckExistence(ctx context.Context, address string) (bool, string, error) {
	prompt, err := c.prompts.Existence(address)
	if err != nil {
		return false, "", err
	}

	text, failure := c.complete(ctx, StageExistence, address, prompt)
	if ctx.Err() != nil {
		return false, "", ctx.Err()
	}
	if failure != nil {
		return false, failureText(failure, "Error: "), nil
	}

	exists, ambiguous := interpret.ParseExistence(text)
	log := zap.L().With(zap.String("wallet", model.ShortAddress(address)))
	switch {
	case ambiguous:
		log.Warn("existence check ambiguous, defaulting to false", zap.String("response", preview(text)))
	case exists:
		log.Info("existence check: post exists")
	default:
		log.Info("existence check: no posts found")
	}
	return exists, text, nil
}

// AnalyzeOwnership asks who posted the address and how strongly the post
// ties the address to that account. A response without a recognizable
// handle is not a failure; it is reported through the result's Error.
func (c *Client) AnalyzeOwnership(ctx context.Context, address string) (model.OwnershipResult, error) {
	prompt, err := c.prompts.Ownership(address)
	if err != nil {
		return model.OwnershipResult{}, err
	}

	text, failure := c.complete(ctx, StageOwnership, address, prompt)
	if ctx.Err() != nil {
		return model.OwnershipResult{}, ctx.Err()
	}
	if failure != nil {
		return model.OwnershipResult{Error: failureText(failure, "")}, nil
	}

	username := interpret.ExtractUsername(text)
	confidence := interpret.ExtractConfidence(text).OrDefault(model.ConfidenceMedium)
	log := zap.L().With(zap.String("wallet", model.ShortAddress(address)))

	if username == "" {
		log.Warn("ownership analysis: could not parse username")
		log.Debug("ownership raw response", zap.String("response", preview(text)))
		return model.OwnershipResult{
			Confidence:  confidence,
			RawResponse: text,
			Error:       msgUnparsedHandle,
		}, nil
	}

	log.Info("ownership analysis complete",
		zap.String("username", username),
		zap.String("confidence", string(confidence)),
	)
	return model.OwnershipResult{
		Username:    username,
		Confidence:  confidence,
		RawResponse: text,
	}, nil
}

// errMaxRetries marks attempts exhausted by rate limiting alone.
var errMaxRetries = eris.New(msgMaxRetries)

// complete runs the retry loop. It returns the provider text, or the
// terminal failure once attempts are exhausted.
func (c *Client) complete(ctx context.Context, stage Stage, address, prompt string) (string, error) {
	log := zap.L().With(
		zap.String("stage", string(stage)),
		zap.String("wallet", model.ShortAddress(address)),
	)

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Admit(ctx); err != nil {
			return "", err
		}

		log.Info("provider call", zap.Int("attempt", attempt+1), zap.Int("max_attempts", c.cfg.MaxRetries))
		resp, err := c.completer.Complete(ctx, Prompt{Text: prompt, Search: true})
		if err == nil {
			c.limiter.ResetFailures()
			c.observeCall(stage, OutcomeSuccess)
			if c.observer != nil {
				usage := resp.Usage
				usage.Worksheet = WorksheetFrom(ctx)
				c.observer.ObserveUsage(stage, usage)
			}
			return strings.TrimSpace(resp.Text), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		class := resilience.Classify(err)
		log.Error("provider call failed", zap.Int("attempt", attempt+1), zap.Stringer("class", class), zap.Error(err))

		if class == resilience.ClassRateLimited {
			c.observeCall(stage, OutcomeRateLimited)
			if _, sErr := c.limiter.OnRateLimited(ctx, attempt+1); sErr != nil {
				return "", sErr
			}
			continue
		}
		c.observeCall(stage, OutcomeError)

		if attempt >= c.cfg.MaxRetries-1 {
			return "", err
		}
		wait := time.Duration(attempt+1) * c.cfg.RetryBaseDelay
		log.Info("waiting before retry", zap.Duration("wait", wait))
		if sErr := c.sleep(ctx, wait); sErr != nil {
			return "", sErr
		}
	}
	return "", errMaxRetries
}

func (c *Client) observeCall(stage Stage, outcome Outcome) {
	if c.observer != nil {
		c.observer.ObserveCall(stage, outcome)
	}
}

func failureText(err error, prefix string) string {
	if errors.Is(err, errMaxRetries) {
		return msgMaxRetries
	}
	return prefix + err.Error()
}

func preview(s string) string {
	if len(s) <= logResponsePreview {
		return s
	}
	return s[:logResponsePreview] + "..."
}
