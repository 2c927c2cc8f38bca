package domain

import "time"

// LedgerKind tells a credit from a debit.
type LedgerKind string

// LedgerKind values.
const (
	LedgerCredit LedgerKind = "credit"
	LedgerDebit  LedgerKind = "debit"
)

// LedgerEntry is one level update in a user's points ledger.
type LedgerEntry struct {
	ID          int64
	ActivityID  string
	UserID      string
	LevelID     string
	Kind        LedgerKind
	Points      int
	EffectiveAt time.Time
}

// PointsAt sums every entry effective at or before at.
func PointsAt(entries []LedgerEntry, at time.Time) int {
	total := 0
	for _, e := range entries {
		if e.EffectiveAt.After(at) {
			continue
		}
		total += e.Points
	}
	return total
}
