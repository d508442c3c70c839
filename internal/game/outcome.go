package game

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// Outcome is a round's terminal multiplier together with what a player
// needs to verify it once the round has settled.
type Outcome struct {
	Crash      decimal.Decimal
	ServerSeed string
	ClientSeed string
	Nonce      int
	Commitment string
}

// OutcomeSource draws one terminal multiplier per round. The session calls
// Next exactly once, at the Betting to Ascending transition.
type OutcomeSource interface {
	Next() (Outcome, error)
}

// Committer is implemented by sources that can publish a commitment to the
// next draw while bets are still open.
type Committer interface {
	NextCommitment() string
}

// ClientSeeder is implemented by sources that accept a player-chosen seed.
type ClientSeeder interface {
	SetClientSeed(seed string)
}

// ProvablyFairSource draws crash points from fresh server seeds. It is owned
// by a single Session and is not safe for concurrent use.
type ProvablyFairSource struct {
	dist       Distribution
	clientSeed string
	nextSeed   string
	nonce      int
}

func NewProvablyFairSource(dist Distribution, clientSeed string) *ProvablyFairSource {
	if clientSeed == "" {
		clientSeed = GenerateSeed()
	}
	return &ProvablyFairSource{
		dist:       dist,
		clientSeed: clientSeed,
		nextSeed:   GenerateSeed(),
	}
}

func (p *ProvablyFairSource) Next() (Outcome, error) {
	seed := p.nextSeed
	p.nextSeed = GenerateSeed()
	p.nonce++

	return Outcome{
		Crash:      HashAndMapToMultiplier(seed, p.clientSeed, p.nonce, p.dist),
		ServerSeed: seed,
		ClientSeed: p.clientSeed,
		Nonce:      p.nonce,
		Commitment: HashCommitment(seed),
	}, nil
}

func (p *ProvablyFairSource) NextCommitment() string {
	return HashCommitment(p.nextSeed)
}

func (p *ProvablyFairSource) SetClientSeed(seed string) {
	p.clientSeed = seed
}

// SequenceSource replays fixed crash points, repeating the last one once the
// list is exhausted. Used by tests and demos.
type SequenceSource struct {
	mu     sync.Mutex
	points []decimal.Decimal
	next   int
}

func NewSequenceSource(points ...decimal.Decimal) *SequenceSource {
	return &SequenceSource{points: points}
}

func (s *SequenceSource) Next() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		return Outcome{}, errors.New("sequence source is empty")
	}
	i := s.next
	if i >= len(s.points) {
		i = len(s.points) - 1
	} else {
		s.next++
	}
	return Outcome{Crash: s.points[i], Nonce: s.next}, nil
}
