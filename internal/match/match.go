// Package match pairs ledger transactions against provider settlement
// records. Matching is a pure computation over its inputs: the same
// transaction multiset always yields the same result multiset, input
// order notwithstanding, and each transaction is consumed by at most
// one result.
package match

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/daybook-dev/daybook/internal/id"
	"github.com/daybook-dev/daybook/internal/model"
)

// Config holds the matcher's time windows.
type Config struct {
	// Window bounds amount/time matching: a reference-less ledger
	// transaction only pairs with a provider record of equal amount
	// within this distance of its timestamp.
	Window time.Duration
	// SettlementWindow separates PendingSettlement from MissingProvider
	// for unmatched, unsettled ledger transactions.
	SettlementWindow time.Duration
}

// Run matches ledger against provider transactions, partitioned by
// provider code with one goroutine per partition. Results are merged
// and sorted deterministically, so internal parallelism never affects
// the tie-break guarantees. Cancellation is honored between partitions;
// a cancelled run returns ctx.Err() and no results.
func Run(ctx context.Context, ledger, provider []model.Transaction, cfg Config, asOf time.Time) ([]model.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parts := partition(ledger, provider)

	results := make([][]model.MatchResult, len(parts))
	var wg sync.WaitGroup
	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, p part) {
			defer wg.Done()
			results[i] = matchPartition(p.ledger, p.provider, cfg, asOf)
		}(i, p)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []model.MatchResult
	for _, rs := range results {
		merged = append(merged, rs...)
	}
	sortResults(merged)
	return merged, nil
}

type part struct {
	ledger   []model.Transaction
	provider []model.Transaction
}

// partition groups both feeds by provider code so partitions can be
// matched independently. Transactions without a provider code share the
// "" partition.
func partition(ledger, provider []model.Transaction) []part {
	byCode := make(map[string]*part)
	var order []string

	get := func(code string) *part {
		p, ok := byCode[code]
		if !ok {
			p = &part{}
			byCode[code] = p
			order = append(order, code)
		}
		return p
	}

	for _, t := range ledger {
		p := get(t.Provider)
		p.ledger = append(p.ledger, t)
	}
	for _, t := range provider {
		p := get(t.Provider)
		p.provider = append(p.provider, t)
	}

	sort.Strings(order)
	parts := make([]part, 0, len(order))
	for _, code := range order {
		parts = append(parts, *byCode[code])
	}
	return parts
}

// matchPartition runs the two matching passes over one partition.
//
// Pass 1 links by reference: a ledger transaction pairs with an
// unconsumed provider record sharing its internal or provider
// reference. Equal amounts give Matched, differing amounts
// AmountMismatch.
//
// Pass 2 links by amount and proximity: equal amounts within the
// configured window. Ties prefer the smallest absolute time delta, then
// the earliest provider timestamp, then the lexically smaller ID.
//
// Leftover ledger transactions become PendingSettlement while unsettled
// and inside the settlement window, MissingProvider otherwise. Leftover
// provider records become MissingLedger.
func matchPartition(ledger, provider []model.Transaction, cfg Config, asOf time.Time) []model.MatchResult {
	led := sortedCopy(ledger)
	prv := sortedCopy(provider)

	consumed := make([]bool, len(prv))
	matchedWith := make([]int, len(led)) // provider index or -1
	for i := range matchedWith {
		matchedWith[i] = -1
	}

	// Index provider records by both references.
	byRef := make(map[string][]int)
	for i, p := range prv {
		if p.InternalRef != "" {
			byRef[p.InternalRef] = append(byRef[p.InternalRef], i)
		}
		if p.ProviderRef != "" && p.ProviderRef != p.InternalRef {
			byRef[p.ProviderRef] = append(byRef[p.ProviderRef], i)
		}
	}

	// Pass 1: reference links.
	for i, l := range led {
		var candidates []int
		if l.InternalRef != "" {
			candidates = append(candidates, byRef[l.InternalRef]...)
		}
		if l.ProviderRef != "" && l.ProviderRef != l.InternalRef {
			candidates = append(candidates, byRef[l.ProviderRef]...)
		}
		best := pickBest(l, prv, candidates, consumed, 0)
		if best >= 0 {
			matchedWith[i] = best
			consumed[best] = true
		}
	}

	// Pass 2: equal amount within the window.
	byAmount := make(map[int64][]int)
	for i, p := range prv {
		if !consumed[i] {
			byAmount[p.AmountMinor] = append(byAmount[p.AmountMinor], i)
		}
	}
	for i, l := range led {
		if matchedWith[i] >= 0 {
			continue
		}
		best := pickBest(l, prv, byAmount[l.AmountMinor], consumed, cfg.Window)
		if best >= 0 {
			matchedWith[i] = best
			consumed[best] = true
		}
	}

	// Assemble results.
	var results []model.MatchResult
	for i := range led {
		l := &led[i]
		if j := matchedWith[i]; j >= 0 {
			p := &prv[j]
			status := model.StatusMatched
			if l.AmountMinor != p.AmountMinor {
				status = model.StatusAmountMismatch
			}
			results = append(results, model.MatchResult{
				ID:            id.MatchID(l.ID, p.ID),
				Ledger:        l,
				Provider:      p,
				Status:        status,
				VarianceMinor: p.AmountMinor - l.AmountMinor,
			})
			continue
		}

		status := model.StatusMissingProvider
		if !l.Settled() && asOf.Sub(l.Timestamp) <= cfg.SettlementWindow {
			status = model.StatusPendingSettlement
		}
		results = append(results, model.MatchResult{
			ID:     id.MatchID(l.ID, ""),
			Ledger: l,
			Status: status,
		})
	}
	for j := range prv {
		if consumed[j] {
			continue
		}
		p := &prv[j]
		results = append(results, model.MatchResult{
			ID:       id.MatchID("", p.ID),
			Provider: p,
			Status:   model.StatusMissingLedger,
		})
	}
	return results
}

// pickBest selects the best unconsumed provider candidate for a ledger
// transaction. A nonzero window additionally bounds the time delta.
// Preference order: smallest |delta t|, earliest provider timestamp,
// smaller ID. Returns -1 when no candidate qualifies.
func pickBest(l model.Transaction, prv []model.Transaction, candidates []int, consumed []bool, window time.Duration) int {
	best := -1
	var bestDelta time.Duration
	for _, j := range candidates {
		if consumed[j] {
			continue
		}
		p := prv[j]
		delta := p.Timestamp.Sub(l.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if window > 0 && delta > window {
			continue
		}
		if best < 0 || delta < bestDelta ||
			(delta == bestDelta && beats(p, prv[best])) {
			best = j
			bestDelta = delta
		}
	}
	return best
}

// beats reports whether a should win a tie over b: earlier timestamp
// first, then the smaller ID.
func beats(a, b model.Transaction) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// sortedCopy orders transactions by timestamp then ID so the matching
// passes iterate deterministically regardless of input order.
func sortedCopy(txns []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	copy(out, txns)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortResults orders results by ledger then provider transaction ID.
func sortResults(results []model.MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].LedgerID() != results[j].LedgerID() {
			return results[i].LedgerID() < results[j].LedgerID()
		}
		return results[i].ProviderID() < results[j].ProviderID()
	})
}
