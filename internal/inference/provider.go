package inference

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wallet-search-cli/internal/resilience"
	"github.com/sells-group/wallet-search-cli/pkg/anthropic"
	"github.com/sells-group/wallet-search-cli/pkg/perplexity"
	"github.com/sells-group/wallet-search-cli/pkg/xai"
)

// Provider names accepted by NewCompleter.
const (
	ProviderXAI        = "xai"
	ProviderPerplexity = "perplexity"
	ProviderAnthropic  = "anthropic"
)

// ProviderConfig selects and configures a Completer.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewCompleter builds the Completer for the configured provider.
func NewCompleter(cfg ProviderConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, eris.Errorf("inference: %s api key is required", cfg.Name)
	}

	switch strings.ToLower(cfg.Name) {
	case ProviderXAI, "":
		var opts []xai.Option
		if cfg.Model != "" {
			opts = append(opts, xai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, xai.WithBaseURL(cfg.BaseURL))
		}
		return NewXAICompleter(xai.NewClient(cfg.APIKey, opts...), cfg.Model), nil
	case ProviderPerplexity:
		var opts []perplexity.Option
		if cfg.Model != "" {
			opts = append(opts, perplexity.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.BaseURL))
		}
		return NewPerplexityCompleter(perplexity.NewClient(cfg.APIKey, opts...), cfg.Model), nil
	case ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return NewAnthropicCompleter(anthropic.NewClient(cfg.APIKey, opts...), cfg.Model), nil
	default:
		return nil, eris.Errorf("inference: unknown provider %q", cfg.Name)
	}
}

// XAICompleter answers prompts with Grok, searching X posts when asked.
type XAICompleter struct {
	client xai.Client
	model  string
}

// NewXAICompleter wraps an xai.Client.
func NewXAICompleter(client xai.Client, model string) *XAICompleter {
	return &XAICompleter{client: client, model: model}
}

// Complete implements Completer.
func (c *XAICompleter) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	req := xai.ChatCompletionRequest{
		Model:    c.model,
		Messages: []xai.Message{{Role: "user", Content: p.Text}},
	}
	if p.Search {
		req.SearchParameters = xai.XSearch()
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text: resp.Content(),
		Usage: Usage{
			Provider:     ProviderXAI,
			Model:        resp.Model,
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Sources:      int64(resp.Usage.NumSourcesUsed),
		},
	}, nil
}

// PerplexityCompleter answers prompts with Perplexity, restricting web
// search to X/Twitter when asked.
type PerplexityCompleter struct {
	client perplexity.Client
	model  string
}

// NewPerplexityCompleter wraps a perplexity.Client.
func NewPerplexityCompleter(client perplexity.Client, model string) *PerplexityCompleter {
	return &PerplexityCompleter{client: client, model: model}
}

// Complete implements Completer.
func (c *PerplexityCompleter) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	req := perplexity.SocialSearch(c.model, p.Text)
	if !p.Search {
		req.SearchDomainFilter = nil
		req.WebSearchOptions = nil
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text: resp.Content(),
		Usage: Usage{
			Provider:     ProviderPerplexity,
			Model:        c.model,
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Sources:      int64(resp.Sources()),
		},
	}, nil
}

// AnthropicCompleter answers prompts with Claude. It has no live search,
// so answers reflect model knowledge only.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter wraps an anthropic.Client.
func NewAnthropicCompleter(client anthropic.Client, model string) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: model}
}

// Complete implements Completer. SDK 429s are surfaced as transient
// rate-limit errors.
func (c *AnthropicCompleter) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:    c.model,
		Messages: []anthropic.Message{{Role: "user", Content: p.Text}},
	})
	if err != nil {
		if code := anthropic.StatusCode(err); code != 0 && resilience.IsTransientHTTPStatus(code) {
			return nil, resilience.NewTransientError(err, code)
		}
		return nil, err
	}
	return &Completion{
		Text: resp.Text(),
		Usage: Usage{
			Provider:     ProviderAnthropic,
			Model:        resp.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
