package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
)

// Outcome reports the result of one verification
type Outcome string

const (
	OutcomeMatch       Outcome = "match"
	OutcomeMismatch    Outcome = "mismatch"
	OutcomeUnavailable Outcome = "unavailable"
)

// Verifier cross-checks local state against the external consensus oracle.
// Verification is advisory: it never blocks or reverts indexing, it only
// flags divergent records for review.
type Verifier interface {
	// Verify compares the local owner of hashID against the oracle's view
	Verify(ctx context.Context, chain domain.Chain, hashID string) (Outcome, error)
}

// oracleEthscription is the oracle's record of one ethscription
type oracleEthscription struct {
	TransactionHash    string  `json:"transaction_hash"`
	CurrentOwner       string  `json:"current_owner"`
	Creator            string  `json:"creator"`
	EthscriptionNumber *uint64 `json:"ethscription_number"`
}

type verifier struct {
	http      adapter.HTTPClient
	store     store.Store
	oracleURL string
}

// NewVerifier creates a new consensus verifier backed by the oracle at baseURL
func NewVerifier(http adapter.HTTPClient, st store.Store, baseURL string) Verifier {
	return &verifier{
		http:      http,
		store:     st,
		oracleURL: strings.TrimRight(baseURL, "/"),
	}
}

// Verify compares the local owner of hashID against the oracle's view. The
// oracle is queried at most twice; an unreachable oracle leaves local state
// untouched.
func (v *verifier) Verify(ctx context.Context, chain domain.Chain, hashID string) (Outcome, error) {
	phunk, err := v.store.GetPhunk(ctx, chain, hashID)
	if err != nil {
		return OutcomeUnavailable, fmt.Errorf("failed to load local record: %w", err)
	}

	url := fmt.Sprintf("%s/ethscriptions/%s", v.oracleURL, hashID)

	var record oracleEthscription
	if err := v.http.Get(ctx, url, &record); err != nil {
		if !errors.Is(err, adapter.ErrNotFound) {
			// One retry, then give up without touching local state
			err = v.http.Get(ctx, url, &record)
		}
		// An ethscription the oracle does not know is an existence mismatch,
		// not a transport failure
		if errors.Is(err, adapter.ErrNotFound) {
			if err := v.store.SetFlagged(ctx, chain, hashID, true); err != nil {
				return OutcomeUnavailable, fmt.Errorf("failed to update flag: %w", err)
			}
			logger.WarnCtx(ctx, "Consensus mismatch, oracle has no record",
				zap.String("chain", string(chain)),
				zap.String("hash_id", hashID))
			return OutcomeMismatch, nil
		}
		if err != nil {
			logger.WarnCtx(ctx, "Consensus oracle unavailable",
				zap.String("chain", string(chain)),
				zap.String("hash_id", hashID), zap.Error(err))
			return OutcomeUnavailable, nil
		}
	}

	if record.EthscriptionNumber != nil {
		if err := v.store.SetEthscriptionNumber(ctx, chain, hashID, *record.EthscriptionNumber); err != nil {
			return OutcomeUnavailable, fmt.Errorf("failed to record ethscription number: %w", err)
		}
	}

	mismatch := domain.NormalizeAddress(record.CurrentOwner) != phunk.Owner ||
		(record.Creator != "" && domain.NormalizeAddress(record.Creator) != phunk.Creator)

	if err := v.store.SetFlagged(ctx, chain, hashID, mismatch); err != nil {
		return OutcomeUnavailable, fmt.Errorf("failed to update flag: %w", err)
	}

	if mismatch {
		logger.WarnCtx(ctx, "Consensus mismatch",
			zap.String("chain", string(chain)),
			zap.String("hash_id", hashID),
			zap.String("local_owner", phunk.Owner),
			zap.String("oracle_owner", record.CurrentOwner))
		return OutcomeMismatch, nil
	}

	return OutcomeMatch, nil
}
