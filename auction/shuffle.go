package auction

import (
	"encoding/binary"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/flashbots/batchclear/crypto"
)

// shuffleDomain separates the shuffle stream from other BLAKE3 uses.
const shuffleDomain = "batchclear/shuffle/v1"

// ShuffleEngine derives the execution ordering for a batch from the
// revealed secrets.
type ShuffleEngine struct{}

// NewShuffleEngine creates a shuffle engine.
func NewShuffleEngine() *ShuffleEngine {
	return &ShuffleEngine{}
}

// DeriveSeed folds all secrets into the shuffle seed with XOR. The fold is
// commutative, so the seed depends only on the multiset of secrets, not on
// the order reveals arrived in.
func (e *ShuffleEngine) DeriveSeed(orders []RevealedOrder) crypto.Secret {
	var seed crypto.Secret
	for i := range orders {
		seed = seed.XOR(orders[i].Secret)
	}
	return seed
}

// DeriveOrdering returns the execution permutation over the revealed
// orders. Two observers holding the same reveal set always compute the
// same ordering: the input is first canonicalized by commitment digest,
// erasing submission order, then shuffled with an unbiased Fisher-Yates
// driven by a deterministic stream keyed on the combined seed.
func (e *ShuffleEngine) DeriveOrdering(orders []RevealedOrder) []RevealedOrder {
	out := make([]RevealedOrder, len(orders))
	copy(out, orders)

	sort.Slice(out, func(i, j int) bool {
		return crypto.LessDigest(out[i].Digest, out[j].Digest)
	})

	stream := newShuffleStream(e.DeriveSeed(orders))
	for i := len(out) - 1; i > 0; i-- {
		j := stream.uintN(uint64(i + 1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// shuffleStream yields deterministic uniform values derived from the seed.
// Each 32-byte block is BLAKE3(domain || seed || counter).
type shuffleStream struct {
	seed    crypto.Secret
	counter uint64
	block   [32]byte
	offset  int
}

func newShuffleStream(seed crypto.Secret) *shuffleStream {
	s := &shuffleStream{seed: seed}
	s.refill()
	return s
}

func (s *shuffleStream) refill() {
	h := blake3.New()
	h.Write([]byte(shuffleDomain))
	h.Write(s.seed[:])

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.counter)
	h.Write(buf[:])

	copy(s.block[:], h.Sum(nil))
	s.counter++
	s.offset = 0
}

func (s *shuffleStream) next64() uint64 {
	if s.offset+8 > len(s.block) {
		s.refill()
	}
	v := binary.BigEndian.Uint64(s.block[s.offset : s.offset+8])
	s.offset += 8
	return v
}

// uintN returns a uniform value in [0, n) using rejection sampling, so the
// Fisher-Yates swap index carries no modulo bias.
func (s *shuffleStream) uintN(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	limit := ^uint64(0) - (^uint64(0) % n)
	for {
		if v := s.next64(); v < limit {
			return v % n
		}
	}
}
