package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var MinMultiplier = decimal.RequireFromString("1.00")

// 2^53, so a 53-bit integer maps onto [0, 1) without rounding.
const uniformScale = 9007199254740992.0

// Distribution parameterises the crash point mapping.
type Distribution struct {
	InstantCrashProbability float64
	HouseEdge               float64
	Max                     decimal.Decimal
}

func (c Config) Distribution() Distribution {
	return Distribution{
		InstantCrashProbability: c.InstantCrashProbability,
		HouseEdge:               c.HouseEdge,
		Max:                     c.MaxMultiplier,
	}
}

// HashAndMapToMultiplier derives a crash point from the round's seeds.
// HMAC-SHA256(serverSeed, "clientSeed:nonce") gives two independent uniforms:
// the first decides the instant crash, the second is mapped through
// (1-edge)/(1-u) so that P(crash >= m) = (1-edge)/m for the rest.
func HashAndMapToMultiplier(serverSeed, clientSeed string, nonce int, dist Distribution) decimal.Decimal {
	h := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(h, "%s:%d", clientSeed, nonce)
	sum := h.Sum(nil)

	instant := uniform(sum[0:8])
	if instant < dist.InstantCrashProbability {
		return MinMultiplier
	}

	u := uniform(sum[8:16])
	crash := (1 - dist.HouseEdge) / (1 - u)

	maxF := dist.Max.InexactFloat64()
	if crash >= maxF {
		return dist.Max.Truncate(2)
	}

	// Round down to 2 decimal places
	final := decimal.New(int64(math.Floor(crash*100)), -2)
	if final.LessThan(MinMultiplier) {
		return MinMultiplier
	}
	return final
}

func uniform(b []byte) float64 {
	return float64(binary.BigEndian.Uint64(b)>>11) / uniformScale
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// VerifyRound lets a player check a revealed round: the seed must match the
// commitment published before launch and reproduce the crash point.
func VerifyRound(serverSeed, clientSeed string, nonce int, commitment string, dist Distribution, claimed decimal.Decimal) bool {
	if commitment != "" && HashCommitment(serverSeed) != commitment {
		return false
	}
	return HashAndMapToMultiplier(serverSeed, clientSeed, nonce, dist).Equal(claimed)
}
