package address

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgram = ProgramID("Test SDF Network ; September 2015", "service-marketplace")

func randomAddress(t *testing.T) Address {
	t.Helper()
	var a Address
	_, err := rand.Read(a[:])
	require.NoError(t, err)
	return a
}

func TestDerive_Deterministic(t *testing.T) {
	vendor := randomAddress(t)

	a1, err := OfferingAddress(testProgram, vendor, "Test Offering")
	require.NoError(t, err)
	a2, err := OfferingAddress(testProgram, vendor, "Test Offering")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.False(t, a1.IsZero())
}

func TestDerive_EachInputChangesAddress(t *testing.T) {
	vendor := randomAddress(t)
	base, err := OfferingAddress(testProgram, vendor, "Test Offering")
	require.NoError(t, err)

	otherVendor, err := OfferingAddress(testProgram, randomAddress(t), "Test Offering")
	require.NoError(t, err)
	otherName, err := OfferingAddress(testProgram, vendor, "Test Offering 2")
	require.NoError(t, err)
	otherProgram, err := OfferingAddress(randomAddress(t), vendor, "Test Offering")
	require.NoError(t, err)
	otherNamespace, err := Derive(testProgram, SeedListing, vendor[:], []byte("Test Offering"))
	require.NoError(t, err)

	for name, addr := range map[string]Address{
		"vendor":    otherVendor,
		"name":      otherName,
		"program":   otherProgram,
		"namespace": otherNamespace,
	} {
		assert.NotEqual(t, base, addr, "changing %s must change the address", name)
	}
}

func TestDerive_LengthPrefixPreventsBoundaryCollisions(t *testing.T) {
	a, err := Derive(testProgram, "ns", []byte("ab"), []byte("c"))
	require.NoError(t, err)
	b, err := Derive(testProgram, "ns", []byte("a"), []byte("bc"))
	require.NoError(t, err)
	c, err := Derive(testProgram, "ns", []byte("abc"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestDerive_NoCollisionsAcrossRandomVendorNamePairs(t *testing.T) {
	const trials = 10000
	seen := make(map[Address]string, trials)

	for i := 0; i < trials; i++ {
		vendor := randomAddress(t)
		name := make([]byte, 1+i%MaxSeedLen)
		_, err := rand.Read(name)
		require.NoError(t, err)

		addr, err := OfferingAddress(testProgram, vendor, string(name))
		require.NoError(t, err)

		key := vendor.Hex() + "/" + string(name)
		if prev, ok := seen[addr]; ok {
			t.Fatalf("collision between %q and %q", prev, key)
		}
		seen[addr] = key
	}
}

func TestDerive_InputTooLong(t *testing.T) {
	vendor := randomAddress(t)

	_, err := OfferingAddress(testProgram, vendor, strings.Repeat("x", MaxSeedLen+1))
	assert.ErrorIs(t, err, ErrSeedTooLong)

	_, err = OfferingAddress(testProgram, vendor, strings.Repeat("x", MaxSeedLen))
	assert.NoError(t, err)

	parts := make([][]byte, MaxSeeds)
	_, err = Derive(testProgram, "ns", parts...)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestAddress_RoundTripsThroughStrkey(t *testing.T) {
	kp := keypair.MustRandom()
	addr := FromKeypair(kp)

	assert.Equal(t, kp.Address(), addr.String())

	parsed, err := Parse(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	fromHex, err := Parse(addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, addr, fromHex)

	_, err = Parse("not-an-address")
	assert.Error(t, err)
}
