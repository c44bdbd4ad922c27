package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HeaderSize is the length in bytes of an encoded block header.
const HeaderSize = 96

// Serialized header layout offsets.
const (
	chainOffset   = 0
	heightOffset  = 4
	parentOffset  = 12
	payloadOffset = 44
	bitsOffset    = 76
	timeOffset    = 80
	nonceOffset   = 88
)

// BlockHeader is the header of one block on one chain. The fields consumed
// by the coordination core are the chain identifier, the height (monotonic
// per chain), and the creation timestamp; the remaining fields exist so the
// header can be encoded, solved, and handed back to the chain-state engine.
type BlockHeader struct {
	Chain        ChainID
	Height       uint64
	ParentHash   chainhash.Hash
	PayloadHash  chainhash.Hash
	Bits         uint32
	CreationTime time.Time
	Nonce        uint64
}

// NewWorkHeader constructs the block-candidate header for freshly issued
// work: it extends parent with the given payload at the given creation time.
// The nonce starts at zero and is filled in by the solver.
func NewWorkHeader(parent BlockHeader, payloadHash chainhash.Hash, creationTime time.Time) BlockHeader {
	return BlockHeader{
		Chain:        parent.Chain,
		Height:       parent.Height + 1,
		ParentHash:   parent.BlockHash(),
		PayloadHash:  payloadHash,
		Bits:         parent.Bits,
		CreationTime: creationTime,
	}
}

// Encode serializes the header to its fixed-width wire form. Timestamps are
// encoded with microsecond precision.
func (h *BlockHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[chainOffset:], uint32(h.Chain))
	binary.LittleEndian.PutUint64(buf[heightOffset:], h.Height)
	copy(buf[parentOffset:], h.ParentHash[:])
	copy(buf[payloadOffset:], h.PayloadHash[:])
	binary.LittleEndian.PutUint32(buf[bitsOffset:], h.Bits)
	binary.LittleEndian.PutUint64(buf[timeOffset:], uint64(h.CreationTime.UnixMicro()))
	binary.LittleEndian.PutUint64(buf[nonceOffset:], h.Nonce)
	return buf
}

// DecodeHeader parses a header from its fixed-width wire form.
func DecodeHeader(buf []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(buf) != HeaderSize {
		return h, fmt.Errorf("invalid header length %d, want %d", len(buf), HeaderSize)
	}

	h.Chain = ChainID(binary.LittleEndian.Uint32(buf[chainOffset:]))
	h.Height = binary.LittleEndian.Uint64(buf[heightOffset:])
	copy(h.ParentHash[:], buf[parentOffset:parentOffset+chainhash.HashSize])
	copy(h.PayloadHash[:], buf[payloadOffset:payloadOffset+chainhash.HashSize])
	h.Bits = binary.LittleEndian.Uint32(buf[bitsOffset:])
	h.CreationTime = time.UnixMicro(int64(binary.LittleEndian.Uint64(buf[timeOffset:]))).UTC()
	h.Nonce = binary.LittleEndian.Uint64(buf[nonceOffset:])
	return h, nil
}

// WorkHash returns the content hash identifying a unit of issued work. The
// nonce is excluded so that solving the header does not change its identity
// in the mining ledger.
func (h *BlockHeader) WorkHash() chainhash.Hash {
	buf := h.Encode()
	for i := nonceOffset; i < HeaderSize; i++ {
		buf[i] = 0
	}
	return chainhash.DoubleHashH(buf)
}

// BlockHash returns the proof-of-work hash over the full encoded header,
// nonce included.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	return chainhash.DoubleHashH(h.Encode())
}

// HashToBig converts a hash into a big.Int, treating the hash as a
// little-endian value the way block hashes are compared against targets.
func HashToBig(hash *chainhash.Hash) *big.Int {
	// Reverse into big-endian order for big.Int.
	var buf [chainhash.HashSize]byte
	for i, b := range hash {
		buf[chainhash.HashSize-1-i] = b
	}
	return new(big.Int).SetBytes(buf[:])
}

// CompactToBig expands the compact difficulty-bits representation into the
// full target threshold.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// MeetsTarget reports whether the header's proof-of-work hash satisfies its
// difficulty-bits target.
func (h *BlockHeader) MeetsTarget() bool {
	hash := h.BlockHash()
	return HashToBig(&hash).Cmp(CompactToBig(h.Bits)) <= 0
}
