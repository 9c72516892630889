package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"stakevault/core/state"
)

var (
	ErrTokenNotFound       = errors.New("token: not registered")
	ErrMintPaused          = errors.New("token: minting paused")
	ErrAmountOverflow      = errors.New("token: amount overflow")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrItemNotFound        = errors.New("token: item not found")
	ErrItemExists          = errors.New("token: item already exists")
	ErrNotItemOwner        = errors.New("token: sender does not own item")
)

// Ledger tracks fungible token balances and non-fungible item custody on top
// of the state manager. Balance arithmetic runs through uint256 so overflow is
// detected rather than wrapped.
type Ledger struct {
	mgr *state.Manager
}

func NewLedger(mgr *state.Manager) *Ledger {
	return &Ledger{mgr: mgr}
}

// Register creates a fungible token entry.
func (l *Ledger) Register(symbol, name string, decimals uint8) error {
	return l.mgr.RegisterToken(symbol, name, decimals)
}

// SetMintAuthority assigns the account allowed to mint the token.
func (l *Ledger) SetMintAuthority(symbol string, authority [20]byte) error {
	return l.mgr.SetTokenMintAuthority(symbol, authority[:])
}

// MintAuthority returns the configured mint authority, if one is set.
func (l *Ledger) MintAuthority(symbol string) ([20]byte, bool, error) {
	var authority [20]byte
	meta, err := l.mgr.Token(symbol)
	if err != nil {
		return authority, false, err
	}
	if meta == nil || len(meta.MintAuthority) != len(authority) {
		return authority, false, nil
	}
	copy(authority[:], meta.MintAuthority)
	return authority, true, nil
}

// SetMintPaused toggles the token's mint kill switch.
func (l *Ledger) SetMintPaused(symbol string, paused bool) error {
	return l.mgr.SetTokenMintPaused(symbol, paused)
}

// Mint credits freshly issued units to the recipient. Authority enforcement
// is the caller's responsibility; the ledger only honors the pause switch.
func (l *Ledger) Mint(symbol string, to [20]byte, amount uint64) error {
	meta, err := l.mgr.Token(symbol)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrTokenNotFound
	}
	if meta.MintPaused {
		return ErrMintPaused
	}

	balance, err := l.mgr.Balance(to[:], symbol)
	if err != nil {
		return err
	}
	current, overflow := uint256.FromBig(balance)
	if overflow {
		return ErrAmountOverflow
	}
	updated, overflow := new(uint256.Int).AddOverflow(current, uint256.NewInt(amount))
	if overflow {
		return ErrAmountOverflow
	}
	return l.mgr.SetBalance(to[:], symbol, updated.ToBig())
}

// Transfer moves fungible units between accounts.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount uint64) error {
	if !l.mgr.TokenExists(symbol) {
		return ErrTokenNotFound
	}
	if amount == 0 || from == to {
		return nil
	}

	fromBalance, err := l.mgr.Balance(from[:], symbol)
	if err != nil {
		return err
	}
	fromCurrent, overflow := uint256.FromBig(fromBalance)
	if overflow {
		return ErrAmountOverflow
	}
	value := uint256.NewInt(amount)
	if fromCurrent.Lt(value) {
		return ErrInsufficientBalance
	}

	toBalance, err := l.mgr.Balance(to[:], symbol)
	if err != nil {
		return err
	}
	toCurrent, overflow := uint256.FromBig(toBalance)
	if overflow {
		return ErrAmountOverflow
	}
	toUpdated, overflow := new(uint256.Int).AddOverflow(toCurrent, value)
	if overflow {
		return ErrAmountOverflow
	}

	fromUpdated := new(uint256.Int).Sub(fromCurrent, value)
	if err := l.mgr.SetBalance(from[:], symbol, fromUpdated.ToBig()); err != nil {
		return err
	}
	if err := l.mgr.SetBalance(to[:], symbol, toUpdated.ToBig()); err != nil {
		return fmt.Errorf("token: credit after debit: %w", err)
	}
	return nil
}

// Balance returns the account's balance for the token. Unknown accounts hold
// zero.
func (l *Ledger) Balance(addr [20]byte, symbol string) (*big.Int, error) {
	return l.mgr.Balance(addr[:], symbol)
}

// Metadata returns the token's registration record.
func (l *Ledger) Metadata(symbol string) (*state.TokenMetadata, error) {
	meta, err := l.mgr.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrTokenNotFound
	}
	return meta, nil
}

// Symbols lists every registered token.
func (l *Ledger) Symbols() ([]string, error) {
	return l.mgr.TokenList()
}
