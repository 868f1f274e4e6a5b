package core

// Filter selects a subset of an expense sequence. Zero values mean
// "no constraint": CategoryAll (or "") for Category, 0 for Month and Year.
// Constraints compose with logical AND.
type Filter struct {
	Category string
	Month    int
	Year     int
}

// Match reports whether a single expense satisfies the filter.
func (f Filter) Match(e Expense) bool {
	if f.Category != "" && f.Category != CategoryAll && e.Category != f.Category {
		return false
	}
	if f.Month != 0 && e.Date.Month() != f.Month {
		return false
	}
	if f.Year != 0 && e.Date.Year() != f.Year {
		return false
	}
	return true
}

// ApplyFilters returns the expenses matching f, preserving input order.
func ApplyFilters(expenses []Expense, f Filter) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// PartitionByPaid splits expenses into paid (paid_at set) and unpaid,
// preserving input order within each bucket.
func PartitionByPaid(expenses []Expense) (paid, unpaid []Expense) {
	for _, e := range expenses {
		if e.Paid() {
			paid = append(paid, e)
		} else {
			unpaid = append(unpaid, e)
		}
	}
	return paid, unpaid
}

// PartitionByDueness splits unpaid expenses into past-due (dated on or
// before today) and upcoming. The reference date is injected rather than
// read from the clock so the split is deterministic under test.
func PartitionByDueness(unpaid []Expense, today Date) (pastDue, upcoming []Expense) {
	for _, e := range unpaid {
		if !e.Date.After(today.Time) {
			pastDue = append(pastDue, e)
		} else {
			upcoming = append(upcoming, e)
		}
	}
	return pastDue, upcoming
}

// SumCents totals the amounts of a sequence in integer cents.
func SumCents(expenses []Expense) int64 {
	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
	}
	return total
}

// Summary is the derived view of one owner's ledger: paid/unpaid buckets,
// the dueness split of the unpaid side, and their totals.
type Summary struct {
	Today         Date      `json:"today"`
	Paid          []Expense `json:"paid"`
	PastDue       []Expense `json:"past_due"`
	Upcoming      []Expense `json:"upcoming"`
	PaidCents     int64     `json:"paid_cents"`
	PastDueCents  int64     `json:"past_due_cents"`
	UpcomingCents int64     `json:"upcoming_cents"`
}

// Summarize derives the full bucketed view from an already-loaded sequence.
func Summarize(expenses []Expense, today Date) Summary {
	paid, unpaid := PartitionByPaid(expenses)
	pastDue, upcoming := PartitionByDueness(unpaid, today)
	if paid == nil {
		paid = []Expense{}
	}
	if pastDue == nil {
		pastDue = []Expense{}
	}
	if upcoming == nil {
		upcoming = []Expense{}
	}
	return Summary{
		Today:         today,
		Paid:          paid,
		PastDue:       pastDue,
		Upcoming:      upcoming,
		PaidCents:     SumCents(paid),
		PastDueCents:  SumCents(pastDue),
		UpcomingCents: SumCents(upcoming),
	}
}
