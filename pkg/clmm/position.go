package clmm

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Position - liquidity one owner provides to one range of one pool
type Position struct {
	Liquidity uint128.Uint128  // 16 bytes
	TickLower int32            // 4 bytes
	TickUpper int32            // 4 bytes
	Owner     solana.PublicKey // 32 bytes
	Pool      solana.PublicKey // 32 bytes
	Bump      uint8            // 1 byte
}

func (p *Position) Span() uint64 {
	return uint64(PositionSize)
}

// Matches checks an existing position against the caller's owner and range.
func (p *Position) Matches(owner solana.PublicKey, tickLower, tickUpper int32) error {
	if !p.Owner.Equals(owner) {
		return fmt.Errorf("%w: position belongs to %s", ErrInvalidPositionOwner, p.Owner)
	}
	if p.TickLower != tickLower || p.TickUpper != tickUpper {
		return fmt.Errorf("%w: position covers [%d, %d)", ErrInvalidPositionRange, p.TickLower, p.TickUpper)
	}
	return nil
}

func (p *Position) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(positionDiscriminator[:], false); err != nil {
		return err
	}
	if err := writeU128(encoder, p.Liquidity); err != nil {
		return err
	}
	if err := encoder.WriteInt32(p.TickLower, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteInt32(p.TickUpper, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteBytes(p.Owner[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(p.Pool[:], false); err != nil {
		return err
	}
	return encoder.WriteUint8(p.Bump)
}

func (p *Position) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if err = checkDiscriminator(decoder, positionDiscriminator); err != nil {
		return err
	}
	if p.Liquidity, err = readU128(decoder); err != nil {
		return fmt.Errorf("failed to decode liquidity: %w", err)
	}
	if p.TickLower, err = decoder.ReadInt32(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to decode lower tick: %w", err)
	}
	if p.TickUpper, err = decoder.ReadInt32(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to decode upper tick: %w", err)
	}
	if p.Owner, err = readPublicKey(decoder); err != nil {
		return fmt.Errorf("failed to decode owner: %w", err)
	}
	if p.Pool, err = readPublicKey(decoder); err != nil {
		return fmt.Errorf("failed to decode pool: %w", err)
	}
	if p.Bump, err = decoder.ReadUint8(); err != nil {
		return fmt.Errorf("failed to decode bump: %w", err)
	}
	return nil
}

func (p *Position) Encode() ([]byte, error) {
	return encodeAccount(PositionSize, p)
}

func (p *Position) Decode(data []byte) error {
	if len(data) != PositionSize {
		return fmt.Errorf("invalid position account size: got %d, want %d", len(data), PositionSize)
	}
	return p.UnmarshalWithDecoder(bin.NewBorshDecoder(data))
}

// DerivePositionPDA derives the address of owner's position over [tickLower, tickUpper)
func DerivePositionPDA(programID, owner, pool solana.PublicKey, tickLower, tickUpper int32) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			[]byte(POSITION_SEED),
			owner.Bytes(),
			pool.Bytes(),
			i32Seed(tickLower),
			i32Seed(tickUpper),
		},
		programID,
	)
}
