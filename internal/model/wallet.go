package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is a best-effort label for the network an address belongs to.
// It is informational only; searches always use the address verbatim.
type Chain string

const (
	ChainEVM     Chain = "evm"
	ChainBitcoin Chain = "bitcoin"
	ChainSolana  Chain = "solana"
	ChainUnknown Chain = "unknown"
)

// FirstDataRow is the 1-based sheet row of the first wallet (row 1 is the header).
const FirstDataRow = 2

// WalletRecord identifies one unit of work: a wallet address at a sheet row.
type WalletRecord struct {
	Row     int    `json:"row"`
	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
}

// NewWalletRecord trims the address and classifies its chain. It returns
// false when the address is blank.
func NewWalletRecord(row int, address string) (WalletRecord, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return WalletRecord{}, false
	}
	return WalletRecord{Row: row, Address: address, Chain: ClassifyChain(address)}, true
}

// Short returns the first 20 characters of the address for log lines.
func (w WalletRecord) Short() string {
	return ShortAddress(w.Address)
}

// ShortAddress truncates an address to 20 characters, never splitting a
// multi-byte rune.
func ShortAddress(address string) string {
	n := 0
	for i := range address {
		if n == 20 {
			return address[:i]
		}
		n++
	}
	return address
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ClassifyChain guesses the chain of an address from its shape.
func ClassifyChain(address string) Chain {
	if address == "" {
		return ChainUnknown
	}
	switch {
	case common.IsHexAddress(address) && strings.HasPrefix(strings.ToLower(address), "0x"):
		return ChainEVM
	case strings.HasPrefix(strings.ToLower(address), "bc1") && len(address) >= 14 && len(address) <= 74:
		return ChainBitcoin
	case (address[0] == '1' || address[0] == '3') && len(address) >= 26 && len(address) <= 35 && isBase58(address):
		return ChainBitcoin
	case len(address) >= 32 && len(address) <= 44 && isBase58(address):
		return ChainSolana
	default:
		return ChainUnknown
	}
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
