package rvt

// NewConfig returns the zero-value Config: 32-bit addresses, differential
// addressing, no pulp sign-extension tricks, explicit returns (ret is an
// unpredictable discontinuity), no vector-table bridging, uncompressed full
// branch map, resync disabled. Every
// field is meant to be overridden explicitly by the caller before use.
func NewConfig() Config {
	return Config{
		Arch64:                false,
		FullAddress:            false,
		UsePulpSext:            false,
		ImplicitRet:            false,
		PulpVectorTablePacket:  false,
		CompressFullBranchMap:  false,
		ResyncMax:              0,
	}
}
