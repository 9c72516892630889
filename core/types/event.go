package types

// Event represents a typed event emitted by the ledger when an operation
// mutates state. Attributes carry string-encoded payload fields so events can
// be serialised for RPC clients and indexers without schema coupling.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
