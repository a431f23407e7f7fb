//go:build !darwin && !linux

package keepawake

type unknownPowerProvider struct{}

// NewDefaultPowerProvider returns a provider that reports every reading as
// unknown.
func NewDefaultPowerProvider() PowerProvider {
	return unknownPowerProvider{}
}

func (unknownPowerProvider) Snapshot() PowerSnapshot {
	return PowerSnapshot{}
}
