package core

import (
	"math/rand/v2"
	"sync"

	"github.com/dkeye/Tetris/internal/domain"
)

// MinSequenceLength is the number of pieces generated up front for every game.
const MinSequenceLength = 1000

// PieceSequencer is the piece order shared by every player of one game.
// Entries are append-only: once At(i) returned a kind it returns it forever.
// Players keep their own read cursor; the sequencer has none.
type PieceSequencer struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed uint64
	seq  []domain.PieceKind
}

func NewPieceSequencer(seed uint64, size int) *PieceSequencer {
	if size < MinSequenceLength {
		size = MinSequenceLength
	}
	s := &PieceSequencer{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
		seq:  make([]domain.PieceKind, 0, size),
	}
	s.extendLocked(size)
	return s
}

func (s *PieceSequencer) extendLocked(n int) {
	for len(s.seq) < n {
		s.seq = append(s.seq, domain.PieceKinds[s.rng.IntN(len(domain.PieceKinds))])
	}
}

// At returns the i-th piece, growing the sequence when i is past the end.
func (s *PieceSequencer) At(i int) domain.PieceKind {
	if i < 0 {
		i = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.seq) {
		s.extendLocked(max(i+1, 2*len(s.seq)))
	}
	return s.seq[i]
}

func (s *PieceSequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seq)
}

func (s *PieceSequencer) Seed() uint64 { return s.seed }
