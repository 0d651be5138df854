// Package evaluator combines the existence and ownership queries into a
// single result per wallet.
package evaluator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

const msgUndetermined = "Could not determine ownership"

// Inferer runs the two provider queries for one address.
type Inferer interface {
	CheckExistence(ctx context.Context, address string) (bool, string, error)
	AnalyzeOwnership(ctx context.Context, address string) (model.OwnershipResult, error)
}

// Evaluator produces an InferenceResult for a wallet.
type Evaluator struct {
	inference Inferer
}

// New creates an Evaluator.
func New(inference Inferer) *Evaluator {
	return &Evaluator{inference: inference}
}

// Evaluate runs the existence check and, only when a post exists, the
// ownership analysis. Provider failures are folded into the result; the
// returned error is non-nil only when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, address string) (model.InferenceResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("wallet", model.ShortAddress(address)))

	exists, existence, err := e.inference.CheckExistence(ctx, address)
	if err != nil {
		return model.InferenceResult{}, err
	}

	if !exists {
		log.Info("wallet evaluated", zap.Bool("exists", false), zap.Duration("elapsed", time.Since(start)))
		return model.InferenceResult{
			Address:     address,
			Status:      model.StatusFalse,
			Confidence:  model.ConfidenceNone,
			RawResponse: existence,
		}, nil
	}

	own, err := e.inference.AnalyzeOwnership(ctx, address)
	if err != nil {
		return model.InferenceResult{}, err
	}

	res := model.InferenceResult{
		Address:           address,
		Status:            model.StatusTrue,
		Username:          own.Username,
		Confidence:        own.Confidence,
		RawResponse:       own.RawResponse,
		ExistenceResponse: existence,
	}
	if own.Username == "" {
		res.Confidence = own.Confidence.OrDefault(model.ConfidenceLow)
		res.Error = own.Error
		if res.Error == "" {
			res.Error = msgUndetermined
		}
	}

	log.Info("wallet evaluated",
		zap.Bool("exists", true),
		zap.String("username", res.Username),
		zap.String("confidence", string(res.Confidence)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// EvaluateRecord evaluates rec and stamps the result with its row.
func (e *Evaluator) EvaluateRecord(ctx context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
	res, err := e.Evaluate(ctx, rec.Address)
	if err != nil {
		return res, err
	}
	res.Row = rec.Row
	return res, nil
}
