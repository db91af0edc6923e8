package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// TransferRecord is a single observed value movement between two addresses.
// Records are immutable once fetched.
type TransferRecord struct {
	Signature string          `json:"signature"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Token     string          `json:"token"`
	Timestamp int64           `json:"timestamp"`
	TxType    string          `json:"txType"`
}

// TransferSource supplies ordered transfer records for an address.
type TransferSource interface {
	Transfers(ctx context.Context, address string, limit int) ([]TransferRecord, error)
}

// ErrRateLimited marks a fetch that exhausted its retry budget against the
// indexer's rate limit. Callers may retry the whole analysis later.
var ErrRateLimited = errors.New("ledger: rate limited")
