package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is a transaction as returned by the provider. BlockNumber is
// nil while the transaction is pending.
type Transaction struct {
	Hash        string
	BlockNumber *uint64
	Fields      Record
}

func NewTransaction(rec Record) (Transaction, error) {
	tx := Transaction{Hash: rec.String("hash"), Fields: rec}
	if raw := rec.String("blockNumber"); raw != "" {
		number, err := hexutil.DecodeUint64(raw)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction block number: %w", err)
		}
		tx.BlockNumber = &number
	}
	return tx, nil
}

func (t Transaction) Pending() bool {
	return t.BlockNumber == nil
}

// Confirmations counts the including block, so a transaction in the latest
// block has one confirmation.
func (t Transaction) Confirmations(latest uint64) uint64 {
	if t.BlockNumber == nil || latest < *t.BlockNumber {
		return 0
	}
	return latest - *t.BlockNumber + 1
}
