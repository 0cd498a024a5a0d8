// Package view shapes aggregated expenses for display and for the copy-all
// digest.
package view

import (
	"strings"

	"spendly/internal/core"
)

// HeadingLayout formats a group's date.
const HeadingLayout = "Mon, 02 Jan 2006"

const (
	EmptyMessage = "No expenses yet."
	bullet       = "•"
)

type Item struct {
	ID       string
	Amount   string
	Category string
	Icon     string
	Label    string
	Note     string
}

type Group struct {
	Date    string
	Heading string
	Total   string
	Items   []Item
}

type Summary struct {
	Start string
	End   string
	// ShowRange is set only when both bounds are present.
	ShowRange bool
	Total     string
	Count     int
	Groups    []Group
	Empty     bool
	Digest    string
}

func FormatAmount(m core.Money) string { return m.Display() }

func FormatHeading(d core.Date) string { return d.Format(HeadingLayout) }

// Build renders s. Unknown categories fall back to a generic icon and their
// raw id.
func Build(s core.Summary) Summary {
	out := Summary{
		Start:     s.Range.Start.String(),
		End:       s.Range.End.String(),
		ShowRange: !s.Range.IsOpen(),
		Total:     FormatAmount(s.Total),
		Count:     len(s.Expenses),
		Groups:    make([]Group, 0, len(s.Groups)),
		Empty:     len(s.Groups) == 0,
		Digest:    Digest(s.Groups),
	}
	for _, g := range s.Groups {
		vg := Group{
			Date:    g.Date.String(),
			Heading: FormatHeading(g.Date),
			Total:   FormatAmount(g.Total),
			Items:   make([]Item, 0, len(g.Expenses)),
		}
		for _, e := range g.Expenses {
			c := core.DisplayCategory(e.Category)
			vg.Items = append(vg.Items, Item{
				ID:       e.ID,
				Amount:   FormatAmount(e.Amount),
				Category: e.Category,
				Icon:     c.Icon,
				Label:    c.Label,
				Note:     e.Note,
			})
		}
		out.Groups = append(out.Groups, vg)
	}
	return out
}

// Digest is the plain-text copy of groups: per date a heading line, then one
// "• ₹<amount> <note or category>" line per record. Blocks are separated by
// a blank line.
func Digest(groups []core.DateGroup) string {
	blocks := make([]string, 0, len(groups))
	for _, g := range groups {
		var b strings.Builder
		b.WriteString(FormatHeading(g.Date))
		for _, e := range g.Expenses {
			b.WriteString("\n")
			b.WriteString(bullet + " " + FormatAmount(e.Amount) + " " + describe(e))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// describe is the note, or the stored category id when the note is blank.
func describe(e core.Expense) string {
	if strings.TrimSpace(e.Note) != "" {
		return e.Note
	}
	return e.Category
}
