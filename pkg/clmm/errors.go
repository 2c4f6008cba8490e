package clmm

import (
	"errors"

	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/math128"
)

// Input validation
var (
	ErrInvalidTickRange               = errors.New("invalid tick range")
	ErrInvalidTickSpacing             = errors.New("invalid tick spacing")
	ErrInvalidTokenPair               = errors.New("token mints must differ")
	ErrInvalidPrice                   = errors.New("invalid sqrt price")
	ErrInsufficientInputAmount        = errors.New("insufficient input amount")
	ErrMintRangeMustCoverCurrentPrice = errors.New("mint range must cover current price")
	ErrBurnRangeMustCoverCurrentPrice = errors.New("burn range must cover current price")
	ErrTickNotAligned                 = errors.New("tick is not a multiple of tick spacing")
	ErrTickOutOfRange                 = errors.New("tick is outside the tick array")
	ErrUnauthorized                   = errors.New("signer is not authorized for owner")
)

// State validation
var (
	ErrInvalidPositionOwner   = errors.New("invalid position owner")
	ErrInvalidPositionRange   = errors.New("invalid position range")
	ErrNoLiquidityToRemove    = errors.New("no liquidity to remove")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrPositionNotFound       = errors.New("position not found")
	ErrTickArrayNotFound      = errors.New("tick array not found")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrInvalidTickArray       = errors.New("invalid tick array account")
	ErrAccountDiscriminator   = errors.New("account discriminator mismatch")
)

// Arithmetic
var ErrArithmeticOverflow = math128.ErrOverflow

// Economic
var (
	ErrInsufficientPoolLiquidity = errors.New("insufficient pool liquidity")
	ErrSlippageExceeded          = errors.New("slippage exceeded")
)

// Kind groups errors the way callers react to them.
type Kind string

const (
	KindNone           Kind = ""
	KindInput          Kind = "input"
	KindState          Kind = "state"
	KindArithmetic     Kind = "arithmetic"
	KindEconomic       Kind = "economic"
	KindInfrastructure Kind = "infrastructure"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindInput, []error{
		ErrInvalidTickRange, ErrInvalidTickSpacing, ErrInvalidTokenPair, ErrInvalidPrice,
		ErrInsufficientInputAmount, ErrMintRangeMustCoverCurrentPrice,
		ErrBurnRangeMustCoverCurrentPrice, ErrTickNotAligned, ErrTickOutOfRange, ErrUnauthorized,
	}},
	{KindState, []error{
		ErrInvalidPositionOwner, ErrInvalidPositionRange, ErrNoLiquidityToRemove,
		ErrPoolNotFound, ErrPositionNotFound, ErrTickArrayNotFound,
		ErrPoolAlreadyInitialized, ErrInvalidTickArray, ErrAccountDiscriminator,
	}},
	{KindArithmetic, []error{ErrArithmeticOverflow}},
	{KindEconomic, []error{ErrInsufficientPoolLiquidity, ErrSlippageExceeded}},
}

// KindOf classifies err. Anything unrecognized that is not nil comes from the
// store or the ledger.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		for _, e := range k.errs {
			if errors.Is(err, e) {
				return k.kind
			}
		}
	}
	if errors.Is(err, pkg.ErrAccountNotFound) {
		return KindState
	}
	return KindInfrastructure
}
