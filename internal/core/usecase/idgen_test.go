package usecase

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEntropy(seed uint64) *Entropy {
	return NewEntropy(seed, func() time.Time { return testClock })
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestEntropySameSeedSameSequence(t *testing.T) {
	a, b := newTestEntropy(42), newTestEntropy(42)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.IntN(1000), b.IntN(1000))
	}
	assert.Equal(t, a.Suffix(24), b.Suffix(24))
	assert.Equal(t, a.Hex(32), b.Hex(32))

	c := newTestEntropy(43)
	assert.NotEqual(t, newTestEntropy(42).Suffix(24), c.Suffix(24))
}

func TestEntropyNewIDFormat(t *testing.T) {
	e := newTestEntropy(7)
	id := e.NewID("key")

	millis := strconv.FormatInt(testClock.UnixMilli(), 36)
	assert.Regexp(t, regexp.MustCompile(`^key_`+millis+`[a-z0-9]{4}$`), id)
	assert.NotEqual(t, id, e.NewID("key"))
}

func TestEntropyHexAndSuffixAlphabet(t *testing.T) {
	e := newTestEntropy(1)
	assert.Regexp(t, `^[0-9a-f]{64}$`, e.Hex(64))
	assert.Regexp(t, `^[a-z0-9]{40}$`, e.Suffix(40))
	assert.Equal(t, time.UTC, e.Now().Location())
}
