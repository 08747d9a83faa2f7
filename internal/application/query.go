package application

import (
	"fmt"
	"strings"

	"bcexplorer/internal/domain"
)

type LookupQueryFilter struct {
	Kind  domain.LookupKind
	Limit int
}

// NormalizeLimit clamps a requested page size to 1..100, defaulting to 10.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ParseLookupKind accepts an empty string (all kinds) or one of the known
// lookup kinds.
func ParseLookupKind(raw string) (domain.LookupKind, error) {
	kind := domain.LookupKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case "", domain.LookupBlock, domain.LookupTransaction, domain.LookupBalance:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown lookup kind %q", raw)
	}
}
