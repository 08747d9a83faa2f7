package domain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is a block as returned by the provider. Transactions is populated
// only when the block was fetched with full transaction objects.
type Block struct {
	Number       uint64
	Hash         string
	Fields       Record
	Transactions []Transaction
}

func NewBlock(rec Record) (Block, error) {
	block := Block{Fields: rec, Hash: rec.String("hash")}
	number, err := hexutil.DecodeUint64(rec.String("number"))
	if err != nil {
		return Block{}, fmt.Errorf("block number: %w", err)
	}
	block.Number = number

	raw, ok := rec.Get("transactions")
	if !ok {
		return block, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Block{}, fmt.Errorf("block transactions: %w", err)
	}
	for _, item := range items {
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		txRec, err := DecodeRecord(item)
		if err != nil {
			return Block{}, err
		}
		tx, err := NewTransaction(txRec)
		if err != nil {
			return Block{}, err
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

// TransactionCount counts hashes or objects alike.
func (b Block) TransactionCount() int {
	raw, ok := b.Fields.Get("transactions")
	if !ok {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}

// Summary omits the transactions field, which the page renders separately.
func (b Block) Summary() Record {
	out := make(Record, 0, len(b.Fields))
	for _, field := range b.Fields {
		if field.Key == "transactions" {
			continue
		}
		out = append(out, field)
	}
	return out
}
