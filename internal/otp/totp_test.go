package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSeed = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestEngine(clock *fakeClock) *Engine {
	return NewEngine(Config{Issuer: "test", Clock: clock.Now})
}

func TestGenerateThenVerify(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	engine := newTestEngine(clock)

	code, err := engine.Generate(testSeed)
	require.NoError(t, err)
	require.Len(t, code, 6)

	ok, err := engine.Verify(code, testSeed)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyAcceptsOneStepOfSkew(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	engine := newTestEngine(clock)

	code, err := engine.Generate(testSeed)
	require.NoError(t, err)

	clock.t = clock.t.Add(engine.Period())
	ok, err := engine.Verify(code, testSeed)
	require.NoError(t, err)
	require.True(t, ok, "a code from the previous step must be accepted")
}

func TestVerifyRejectsTwoStepsOld(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	engine := newTestEngine(clock)

	code, err := engine.Generate(testSeed)
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * engine.Period())
	ok, err := engine.Verify(code, testSeed)
	require.NoError(t, err)
	require.False(t, ok, "a code two steps old must be rejected")
}

func TestVerifyWithZeroSkewIsStrict(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	skew := uint(0)
	engine := NewEngine(Config{Clock: clock.Now, Skew: &skew})

	code, err := engine.Generate(testSeed)
	require.NoError(t, err)

	clock.t = clock.t.Add(engine.Period())
	ok, err := engine.Verify(code, testSeed)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDefaultPeriodIsFiveMinutes(t *testing.T) {
	engine := NewEngine(Config{})
	require.Equal(t, 5*time.Minute, engine.Period())
}

func TestMissingSeedIsAContractError(t *testing.T) {
	engine := NewEngine(Config{})

	_, err := engine.Generate("")
	require.ErrorIs(t, err, ErrMissingSeed)

	ok, err := engine.Verify("123456", "")
	require.ErrorIs(t, err, ErrMissingSeed)
	require.False(t, ok)
}

func TestMalformedCodesAreSimplyFalse(t *testing.T) {
	engine := NewEngine(Config{})

	for _, code := range []string{"", "123", "1234567", "abcdef"} {
		ok, err := engine.Verify(code, testSeed)
		require.NoError(t, err, "code %q", code)
		require.False(t, ok, "code %q", code)
	}
}

func TestGenerateSeedProducesUsableSeeds(t *testing.T) {
	engine := NewEngine(Config{Issuer: "test"})

	first, err := engine.GenerateSeed("alice@example.com")
	require.NoError(t, err)
	second, err := engine.GenerateSeed("alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	code, err := engine.Generate(first)
	require.NoError(t, err)
	ok, err := engine.Verify(code, first)
	require.NoError(t, err)
	require.True(t, ok)
}
