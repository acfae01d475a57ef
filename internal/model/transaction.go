package model

import "time"

// Source identifies the origin system of a transaction. It is an open
// enumeration: provider feeds use the provider code as their source.
type Source string

const (
	SourceLedger Source = "ledger"
	SourceBank   Source = "bank"
	SourceManual Source = "manual"
)

// Transaction is the canonical post-normalization record. All monetary
// fields are integer minor currency units; floats never enter the engine.
type Transaction struct {
	ID          string
	Source      Source
	Provider    string // provider code the transaction settles through
	InternalRef string
	ProviderRef string
	AmountMinor int64
	FeeMinor    int64
	Timestamp   time.Time
	SettledAt   *time.Time // nil = not yet settled
}

// Reference returns the preferred matching reference: the internal
// reference when populated, otherwise the provider reference.
func (t Transaction) Reference() string {
	if t.InternalRef != "" {
		return t.InternalRef
	}
	return t.ProviderRef
}

// Settled reports whether the transaction has a settlement timestamp.
func (t Transaction) Settled() bool {
	return t.SettledAt != nil
}
