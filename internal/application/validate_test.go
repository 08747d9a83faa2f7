package application

import (
	"errors"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		err  error
	}{
		{"", "", ErrMissingInput},
		{"   ", "", ErrMissingInput},
		{"0x123", "", ErrInvalidAddress},
		{"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", ErrInvalidAddress},
		{"0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed", "", ErrInvalidAddress},
		{" 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil},
	}
	for _, tt := range tests {
		got, err := ValidateAddress(tt.raw)
		if !errors.Is(err, tt.err) {
			t.Errorf("ValidateAddress(%q) error = %v, want %v", tt.raw, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateAddress(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestValidateTxHash(t *testing.T) {
	valid := "0x88DF016429689C079F3B2F6AD39FA052532C56795B733DA78A91EBE6A713944B"
	got, err := ValidateTxHash(valid)
	if err != nil {
		t.Fatalf("valid hash rejected: %v", err)
	}
	if got != "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b" {
		t.Errorf("expected lower-cased hash, got %s", got)
	}

	for _, raw := range []string{"0x1234", valid[2:] + "00", "0x" + valid[3:] + "g"} {
		if _, err := ValidateTxHash(raw); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("ValidateTxHash(%q) error = %v, want invalid", raw, err)
		}
	}
	if _, err := ValidateTxHash(""); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected missing input, got %v", err)
	}
}

func TestParseBlockNumber(t *testing.T) {
	tests := []struct {
		raw    string
		number uint64
		ok     bool
		err    error
	}{
		{"", 0, false, nil},
		{"latest", 0, false, nil},
		{"17000000", 17000000, true, nil},
		{"0x10", 16, true, nil},
		{"0x0a", 10, true, nil},
		{"0X00FF", 255, true, nil},
		{"010", 10, true, nil},
		{"0x", 0, false, ErrInvalidBlockNumber},
		{"-1", 0, false, ErrInvalidBlockNumber},
		{"0xzz", 0, false, ErrInvalidBlockNumber},
		{"ten", 0, false, ErrInvalidBlockNumber},
	}
	for _, tt := range tests {
		number, ok, err := ParseBlockNumber(tt.raw)
		if !errors.Is(err, tt.err) || number != tt.number || ok != tt.ok {
			t.Errorf("ParseBlockNumber(%q) = %d, %v, %v", tt.raw, number, ok, err)
		}
	}
}
