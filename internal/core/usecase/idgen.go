package usecase

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Entropy is the pseudo-random source shared by id/key generation and vote
// weights. Seed it for reproducible output.
type Entropy struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewEntropy(seed uint64, now func() time.Time) *Entropy {
	if now == nil {
		now = time.Now
	}
	return &Entropy{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: now}
}

// NewTimeSeededEntropy is used outside tests.
func NewTimeSeededEntropy() *Entropy {
	return NewEntropy(uint64(time.Now().UnixNano()), time.Now)
}

func (e *Entropy) Now() time.Time {
	return e.now().UTC()
}

// IntN returns a value in [0, n).
func (e *Entropy) IntN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}

// Suffix returns n characters from [a-z0-9].
func (e *Entropy) Suffix(n int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(suffixAlphabet[e.rng.IntN(len(suffixAlphabet))])
	}
	return b.String()
}

// NewID builds prefix_<base36 unix millis><4 random chars>.
func (e *Entropy) NewID(prefix string) string {
	return prefix + "_" + strconv.FormatInt(e.Now().UnixMilli(), 36) + e.Suffix(4)
}

// Hex returns n random lowercase hex characters.
func (e *Entropy) Hex(n int) string {
	const hexdigits = "0123456789abcdef"
	e.mu.Lock()
	defer e.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = hexdigits[e.rng.IntN(16)]
	}
	return string(b)
}
