package clmm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg/math128"
	"lukechampine.com/uint128"
)

var (
	poolDiscriminator      = accountDiscriminator("Pool")
	positionDiscriminator  = accountDiscriminator("Position")
	tickArrayDiscriminator = accountDiscriminator("TickArray")
)

// accountDiscriminator is the first 8 bytes of sha256("account:<name>")
func accountDiscriminator(name string) [DISCRIMINATOR_SIZE]byte {
	var d [DISCRIMINATOR_SIZE]byte
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DISCRIMINATOR_SIZE])
	return d
}

func checkDiscriminator(decoder *bin.Decoder, want [DISCRIMINATOR_SIZE]byte) error {
	got, err := decoder.ReadNBytes(DISCRIMINATOR_SIZE)
	if err != nil {
		return fmt.Errorf("failed to read discriminator: %w", err)
	}
	if !bytes.Equal(got, want[:]) {
		return ErrAccountDiscriminator
	}
	return nil
}

func encodeAccount(size int, m bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(size)
	if err := m.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeU128(encoder *bin.Encoder, v uint128.Uint128) error {
	b := make([]byte, 16)
	v.PutBytes(b)
	return encoder.WriteBytes(b, false)
}

func readU128(decoder *bin.Decoder) (uint128.Uint128, error) {
	b, err := decoder.ReadNBytes(16)
	if err != nil {
		return uint128.Zero, err
	}
	return uint128.FromBytes(b), nil
}

func writeI128(encoder *bin.Encoder, v math128.Int128) error {
	b := make([]byte, 16)
	v.PutBytes(b)
	return encoder.WriteBytes(b, false)
}

func readI128(decoder *bin.Decoder) (math128.Int128, error) {
	b, err := decoder.ReadNBytes(16)
	if err != nil {
		return math128.Int128{}, err
	}
	return math128.FromBytes(b), nil
}

func readPublicKey(decoder *bin.Decoder) (solana.PublicKey, error) {
	b, err := decoder.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

// i32Seed encodes a tick the way the program seeds its addresses
func i32Seed(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
