package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wallet-search-cli/internal/inference"
	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/ratelimit"
)

const addr = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

type mockInferer struct {
	mock.Mock
}

func (m *mockInferer) CheckExistence(ctx context.Context, address string) (bool, string, error) {
	args := m.Called(ctx, address)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *mockInferer) AnalyzeOwnership(ctx context.Context, address string) (model.OwnershipResult, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(model.OwnershipResult), args.Error(1)
}

func TestEvaluate_NoPostsSkipsOwnership(t *testing.T) {
	inf := &mockInferer{}
	inf.On("CheckExistence", mock.Anything, addr).Return(false, "false", nil)

	res, err := New(inf).Evaluate(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, model.InferenceResult{
		Address:     addr,
		Status:      model.StatusFalse,
		Confidence:  model.ConfidenceNone,
		RawResponse: "false",
	}, res)
	inf.AssertNotCalled(t, "AnalyzeOwnership", mock.Anything, mock.Anything)
	inf.AssertExpectations(t)
}

func TestEvaluate_ExistenceFailureIsNotFound(t *testing.T) {
	inf := &mockInferer{}
	inf.On("CheckExistence", mock.Anything, addr).Return(false, "Max retries exceeded", nil)

	res, err := New(inf).Evaluate(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, "Max retries exceeded", res.RawResponse)
	inf.AssertNotCalled(t, "AnalyzeOwnership", mock.Anything, mock.Anything)
}

func TestEvaluate_OwnerFound(t *testing.T) {
	inf := &mockInferer{}
	inf.On("CheckExistence", mock.Anything, addr).Return(true, "true", nil)
	inf.On("AnalyzeOwnership", mock.Anything, addr).Return(model.OwnershipResult{
		Username:    "satoshi",
		Confidence:  model.ConfidenceHigh,
		RawResponse: "Username: @satoshi\nConfidence: High",
	}, nil)

	res, err := New(inf).EvaluateRecord(context.Background(), model.WalletRecord{Row: 7, Address: addr})
	require.NoError(t, err)
	assert.Equal(t, model.InferenceResult{
		Row:               7,
		Address:           addr,
		Status:            model.StatusTrue,
		Username:          "satoshi",
		Confidence:        model.ConfidenceHigh,
		RawResponse:       "Username: @satoshi\nConfidence: High",
		ExistenceResponse: "true",
	}, res)
	assert.Equal(t, "@satoshi", res.Handle())
	inf.AssertExpectations(t)
}

func TestEvaluate_NoUsername(t *testing.T) {
	tests := []struct {
		name       string
		own        model.OwnershipResult
		confidence model.Confidence
		errText    string
	}{
		{
			name:       "unparsed_keeps_confidence",
			own:        model.OwnershipResult{Confidence: model.ConfidenceMedium, RawResponse: "unclear", Error: "Could not parse username"},
			confidence: model.ConfidenceMedium,
			errText:    "Could not parse username",
		},
		{
			name:       "terminal_failure_defaults_low",
			own:        model.OwnershipResult{Error: "Max retries exceeded"},
			confidence: model.ConfidenceLow,
			errText:    "Max retries exceeded",
		},
		{
			name:       "no_error_text",
			own:        model.OwnershipResult{RawResponse: "?"},
			confidence: model.ConfidenceLow,
			errText:    msgUndetermined,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := &mockInferer{}
			inf.On("CheckExistence", mock.Anything, addr).Return(true, "true", nil)
			inf.On("AnalyzeOwnership", mock.Anything, addr).Return(tt.own, nil)

			res, err := New(inf).Evaluate(context.Background(), addr)
			require.NoError(t, err)
			assert.Equal(t, model.StatusTrue, res.Status)
			assert.Empty(t, res.Username)
			assert.Empty(t, res.Handle())
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, tt.errText, res.Error)
			assert.Equal(t, tt.own.RawResponse, res.RawResponse)
			assert.Equal(t, "true", res.ExistenceResponse)
		})
	}
}

type cannedCompleter struct {
	answers []string
	calls   int
}

func (c *cannedCompleter) Complete(_ context.Context, _ inference.Prompt) (*inference.Completion, error) {
	text := c.answers[min(c.calls, len(c.answers)-1)]
	c.calls++
	return &inference.Completion{Text: text}, nil
}

func TestEvaluate_UnparsedOwnerKeepsMediumConfidence(t *testing.T) {
	tests := []struct {
		name       string
		ownership  string
		confidence model.Confidence
	}{
		{"no_level_stated", "I could not tell which account posted it.", model.ConfidenceMedium},
		{"level_stated", "The poster is unclear. Confidence: Low", model.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &cannedCompleter{answers: []string{"true", tt.ownership}}
			limiter := ratelimit.New(ratelimit.DefaultConfig(), ratelimit.WithSleeper(func(context.Context, time.Duration) error { return nil }))
			client := inference.New(completer, limiter)

			res, err := New(client).Evaluate(context.Background(), addr)
			require.NoError(t, err)
			assert.Equal(t, 2, completer.calls)
			assert.Equal(t, model.StatusTrue, res.Status)
			assert.Empty(t, res.Username)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, "Could not parse username", res.Error)
			assert.Equal(t, tt.ownership, res.RawResponse)
		})
	}
}

func TestEvaluate_ContextErrors(t *testing.T) {
	t.Run("existence", func(t *testing.T) {
		inf := &mockInferer{}
		inf.On("CheckExistence", mock.Anything, addr).Return(false, "", context.Canceled)

		_, err := New(inf).Evaluate(context.Background(), addr)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ownership", func(t *testing.T) {
		inf := &mockInferer{}
		inf.On("CheckExistence", mock.Anything, addr).Return(true, "true", nil)
		inf.On("AnalyzeOwnership", mock.Anything, addr).Return(model.OwnershipResult{}, context.DeadlineExceeded)

		_, err := New(inf).EvaluateRecord(context.Background(), model.WalletRecord{Row: 3, Address: addr})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
