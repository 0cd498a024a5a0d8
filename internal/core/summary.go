package core

// Range is an inclusive calendar-day interval. A zero bound is absent, and a
// range missing either bound is open.
type Range struct {
	Start Date
	End   Date
}

// DateGroup holds the records sharing one calendar day.
type DateGroup struct {
	Date     Date
	Expenses []Expense
	Total    Money
}

// Summary is the filtered, grouped and totalled view of a range.
type Summary struct {
	Range    Range
	Expenses []Expense
	Groups   []DateGroup
	Total    Money
}

// IsOpen reports whether filtering is disabled.
func (r Range) IsOpen() bool {
	return r.Start.IsZero() || r.End.IsZero()
}

// Contains reports whether d lies within the range. Open ranges contain every date.
func (r Range) Contains(d Date) bool {
	if r.IsOpen() {
		return true
	}
	return r.Start.Compare(d) <= 0 && d.Compare(r.End) <= 0
}

// FilterByRange keeps records dated within r, preserving order.
func FilterByRange(items []Expense, r Range) []Expense {
	out := make([]Expense, 0, len(items))
	for _, e := range items {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// GroupByDate partitions items by calendar day. Groups are ordered by first
// appearance of their date and keep insertion order inside.
func GroupByDate(items []Expense) []DateGroup {
	groups := make([]DateGroup, 0)
	index := make(map[string]int)
	for _, e := range items {
		key := e.Date.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DateGroup{Date: e.Date})
		}
		groups[i].Expenses = append(groups[i].Expenses, e)
		groups[i].Total = groups[i].Total.Add(e.Amount)
	}
	return groups
}

// Total sums the amounts of items.
func Total(items []Expense) Money {
	var sum Money
	for _, e := range items {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Summarize filters items by r, then groups and totals the result.
func Summarize(items []Expense, r Range) Summary {
	filtered := FilterByRange(items, r)
	return Summary{
		Range:    r,
		Expenses: filtered,
		Groups:   GroupByDate(filtered),
		Total:    Total(filtered),
	}
}
