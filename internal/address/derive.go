package address

import (
	"encoding/binary"
	"errors"

	"github.com/stellar/go/hash"
	"github.com/stellar/go/network"
)

const (
	// MaxSeedLen is the largest single part accepted by Derive
	MaxSeedLen = 32
	// MaxSeeds is the largest number of parts accepted by Derive
	MaxSeeds = 16

	derivedMarker = "ProgramDerivedAddress"
)

// Namespaces used by the marketplace program
const (
	SeedServiceOffering      = "service_offering"
	SeedServiceOfferingGroup = "service_offering_group"
	SeedListing              = "listing"
)

var (
	ErrSeedTooLong  = errors.New("address seed exceeds 32 bytes")
	ErrTooManySeeds = errors.New("too many address seeds")
)

// Derive maps a namespace and ordered key parts to a deterministic address
// owned by programID. Every part is length-prefixed before hashing so
// different part sequences never share an encoding.
func Derive(programID Address, namespace string, parts ...[]byte) (Address, error) {
	if len(parts)+1 > MaxSeeds {
		return Zero, ErrTooManySeeds
	}
	if len(namespace) > MaxSeedLen {
		return Zero, ErrSeedTooLong
	}

	size := 4 + len(namespace) + len(programID) + len(derivedMarker)
	for _, p := range parts {
		if len(p) > MaxSeedLen {
			return Zero, ErrSeedTooLong
		}
		size += 4 + len(p)
	}

	buf := make([]byte, 0, size)
	buf = appendPart(buf, []byte(namespace))
	for _, p := range parts {
		buf = appendPart(buf, p)
	}
	buf = append(buf, programID[:]...)
	buf = append(buf, derivedMarker...)

	return Address(hash.Hash(buf)), nil
}

func appendPart(buf, part []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(part)))
	return append(buf, part...)
}

// ProgramID returns the well-known id of a program on the given network
func ProgramID(networkPassphrase, programName string) Address {
	id := network.ID(networkPassphrase)
	return Address(hash.Hash(append(id[:], programName...)))
}

// OfferingAddress derives the ServiceOffering account for vendor + name
func OfferingAddress(programID, vendor Address, offeringName string) (Address, error) {
	return Derive(programID, SeedServiceOffering, vendor[:], []byte(offeringName))
}

// OfferingGroupAddress derives the group asset account of an offering
func OfferingGroupAddress(programID, offering Address) (Address, error) {
	return Derive(programID, SeedServiceOfferingGroup, offering[:])
}

// ListingAddress derives the Listing account for asset + seller
func ListingAddress(programID, asset, seller Address) (Address, error) {
	return Derive(programID, SeedListing, asset[:], seller[:])
}
