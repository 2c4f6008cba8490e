package clmm

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// Pool - the shared state of one trading pair at one tick spacing
//
// Total account size: 177 bytes (including 8-byte discriminator)
type Pool struct {
	TokenMint0      solana.PublicKey // 32 bytes
	TokenMint1      solana.PublicKey // 32 bytes
	TokenVault0     solana.PublicKey // 32 bytes, ATA of the pool key for mint 0
	TokenVault1     solana.PublicKey // 32 bytes, ATA of the pool key for mint 1
	GlobalLiquidity uint128.Uint128  // 16 bytes
	SqrtPrice       uint128.Uint128  // 16 bytes, Q96
	CurrentTick     int32            // 4 bytes
	TickSpacing     int32            // 4 bytes
	Bump            uint8            // 1 byte

	// Internal use fields
	PoolId solana.PublicKey `bin:"-"`
}

func (pool *Pool) Span() uint64 {
	return uint64(PoolSize)
}

// Price returns the display price of token0 in token1
func (pool *Pool) Price() decimal.Decimal {
	return PriceFromSqrtPrice(pool.SqrtPrice)
}

// Validate checks the decoded state is one the engine could have written.
func (pool *Pool) Validate(curve Curve) error {
	if pool.TickSpacing <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTickSpacing, pool.TickSpacing)
	}
	if pool.TokenMint0.Equals(pool.TokenMint1) {
		return ErrInvalidTokenPair
	}
	tick, err := curve.TickAtSqrtPrice(pool.SqrtPrice)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}
	if tick != pool.CurrentTick {
		return fmt.Errorf("%w: current tick %d does not match price tick %d", ErrInvalidPrice, pool.CurrentTick, tick)
	}
	return nil
}

// Vault returns the input and output vaults for a swap direction
func (pool *Pool) Vault(zeroForOne bool) (in, out solana.PublicKey) {
	if zeroForOne {
		return pool.TokenVault0, pool.TokenVault1
	}
	return pool.TokenVault1, pool.TokenVault0
}

func (pool *Pool) Mints(zeroForOne bool) (in, out solana.PublicKey) {
	if zeroForOne {
		return pool.TokenMint0, pool.TokenMint1
	}
	return pool.TokenMint1, pool.TokenMint0
}

func (pool *Pool) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(poolDiscriminator[:], false); err != nil {
		return err
	}
	for _, key := range []solana.PublicKey{pool.TokenMint0, pool.TokenMint1, pool.TokenVault0, pool.TokenVault1} {
		if err := encoder.WriteBytes(key[:], false); err != nil {
			return err
		}
	}
	if err := writeU128(encoder, pool.GlobalLiquidity); err != nil {
		return err
	}
	if err := writeU128(encoder, pool.SqrtPrice); err != nil {
		return err
	}
	if err := encoder.WriteInt32(pool.CurrentTick, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteInt32(pool.TickSpacing, binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteUint8(pool.Bump)
}

func (pool *Pool) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if err = checkDiscriminator(decoder, poolDiscriminator); err != nil {
		return err
	}
	for _, dst := range []*solana.PublicKey{&pool.TokenMint0, &pool.TokenMint1, &pool.TokenVault0, &pool.TokenVault1} {
		if *dst, err = readPublicKey(decoder); err != nil {
			return fmt.Errorf("failed to decode pool keys: %w", err)
		}
	}
	if pool.GlobalLiquidity, err = readU128(decoder); err != nil {
		return fmt.Errorf("failed to decode global liquidity: %w", err)
	}
	if pool.SqrtPrice, err = readU128(decoder); err != nil {
		return fmt.Errorf("failed to decode sqrt price: %w", err)
	}
	if pool.CurrentTick, err = decoder.ReadInt32(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to decode current tick: %w", err)
	}
	if pool.TickSpacing, err = decoder.ReadInt32(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to decode tick spacing: %w", err)
	}
	if pool.Bump, err = decoder.ReadUint8(); err != nil {
		return fmt.Errorf("failed to decode bump: %w", err)
	}
	return nil
}

func (pool *Pool) Encode() ([]byte, error) {
	return encodeAccount(PoolSize, pool)
}

// Decode parses pool account data
func (pool *Pool) Decode(data []byte) error {
	if len(data) != PoolSize {
		return fmt.Errorf("invalid pool account size: got %d, want %d", len(data), PoolSize)
	}
	return pool.UnmarshalWithDecoder(bin.NewBorshDecoder(data))
}

// DerivePoolPDA derives the pool address for a mint pair and tick spacing
func DerivePoolPDA(programID, mint0, mint1 solana.PublicKey, tickSpacing int32) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			[]byte(POOL_SEED),
			mint0.Bytes(),
			mint1.Bytes(),
			i32Seed(tickSpacing),
		},
		programID,
	)
}

// DeriveVaults returns the pool-owned token accounts for both mints
func DeriveVaults(pool, mint0, mint1 solana.PublicKey) (vault0, vault1 solana.PublicKey, err error) {
	if vault0, _, err = solana.FindAssociatedTokenAddress(pool, mint0); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("vault 0: %w", err)
	}
	if vault1, _, err = solana.FindAssociatedTokenAddress(pool, mint1); err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("vault 1: %w", err)
	}
	return vault0, vault1, nil
}
