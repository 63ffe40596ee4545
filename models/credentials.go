package models

// Network selects which deployment of the exchange API the client talks
// to. Live and sandbox share the protocol shape but use different base
// endpoints and credential scopes.
type Network string

const (
	NetworkLive    Network = "live"
	NetworkSandbox Network = "sandbox"
)

// Valid reports whether n names a known network.
func (n Network) Valid() bool {
	switch n {
	case NetworkLive, NetworkSandbox:
		return true
	default:
		return false
	}
}

// Credentials holds one API key pair and the network it is scoped to.
// The value is immutable once constructed and lives only in process
// memory; it is never written to disk.
type Credentials struct {
	APIKey    string
	APISecret string
	Network   Network
}
