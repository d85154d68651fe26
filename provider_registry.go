package codexpc

// ProviderID represents a unique provider identifier.
type ProviderID string

// Known provider identifiers
const (
	// ProviderXPC streams through the daemon's foreign call surface
	ProviderXPC ProviderID = "codexpc"

	// ProviderCLI shells out to the codexpc-cli binary and scrapes stdout
	ProviderCLI ProviderID = "codexpc-cli"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderXPC, ProviderCLI:
		return true
	default:
		return false
	}
}
