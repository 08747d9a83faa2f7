package domain

import "time"

type LookupKind string

const (
	LookupBlock       LookupKind = "block"
	LookupTransaction LookupKind = "transaction"
	LookupBalance     LookupKind = "balance"
)

// Lookup is a successful user query kept for the recent lookups list.
type Lookup struct {
	Kind LookupKind `json:"kind"`
	Key  string     `json:"key"`
	At   time.Time  `json:"at"`
	Hits uint64     `json:"hits,omitempty"`
}
