package ledger

const (
	// AccountStorageOverhead is charged on top of every account's data size
	AccountStorageOverhead = 128

	// DefaultLamportsPerByteYear is the default storage price
	DefaultLamportsPerByteYear = 3480

	// ExemptionYears of rent make an account rent-exempt
	ExemptionYears = 2
)

// Rent prices account storage
type Rent struct {
	LamportsPerByteYear uint64
}

// MinimumBalance is the rent-exempt balance for an account of size bytes
func (r Rent) MinimumBalance(size int) uint64 {
	return (AccountStorageOverhead + uint64(size)) * r.LamportsPerByteYear * ExemptionYears
}
