package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// Balance is an account balance at the latest block.
type Balance struct {
	Address string
	Wei     *big.Int
}

var weiPerEther = big.NewInt(params.Ether)

// Ether formats the balance as an exact decimal string in ether.
func (b Balance) Ether() string {
	if b.Wei == nil {
		return "0"
	}
	value := new(big.Int).Abs(b.Wei)
	whole, frac := new(big.Int).QuoRem(value, weiPerEther, new(big.Int))

	sign := ""
	if b.Wei.Sign() < 0 {
		sign = "-"
	}
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	digits := frac.String()
	digits = strings.Repeat("0", 18-len(digits)) + digits
	digits = strings.TrimRight(digits, "0")
	return sign + whole.String() + "." + digits
}

func (b Balance) WeiString() string {
	if b.Wei == nil {
		return "0"
	}
	return b.Wei.String()
}
