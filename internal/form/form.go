// Package form turns raw entry-form input into a validated expense.
package form

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"spendly/internal/core"
)

// Field names, shared with the templates and the CLI flags.
const (
	FieldAmount   = "amount"
	FieldCategory = "category"
	FieldNote     = "note"
	FieldDate     = "date"
)

// MsgPickCategory is shown when no category was chosen.
const MsgPickCategory = "Please pick a category"

var amountPattern = regexp.MustCompile(`^\d*\.?\d{0,2}$`)

// Input is the raw form state. Amount is the text of the amount field.
type Input struct {
	Amount   string
	Category string
	Note     string
	Date     string
}

// ValidationError carries one message per invalid field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid expense: " + strings.Join(parts, "; ")
}

// Message returns the message for field, or "".
func (e *ValidationError) Message(field string) string {
	if e == nil {
		return ""
	}
	return e.Fields[field]
}

// FilterAmountKeystroke returns next when it is an acceptable amount prefix
// (digits, one decimal point, at most two fractional digits), and current
// otherwise. Commas count as decimal points.
func FilterAmountKeystroke(current, next string) string {
	next = strings.ReplaceAll(next, ",", ".")
	if amountPattern.MatchString(next) {
		return next
	}
	return current
}

// SanitizeAmount replays raw one character at a time through the keystroke
// filter, as if it had been typed.
func SanitizeAmount(raw string) string {
	cur := ""
	for _, r := range strings.TrimSpace(raw) {
		cur = FilterAmountKeystroke(cur, cur+string(r))
	}
	return cur
}

// ParseAmount sanitizes raw and converts it to a positive amount.
func ParseAmount(raw string) (core.Money, error) {
	s := SanitizeAmount(raw)
	if s == "" || s == "." {
		return core.Money{}, core.ErrInvalidAmount
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// Draft is a validated submission that still lacks an ID.
type Draft struct {
	Amount   core.Money
	Category string
	Note     string
	Date     core.Date
}

// Validate checks every field and reports all failures at once.
func Validate(in Input) (Draft, error) {
	var d Draft
	errs := map[string]string{}

	if strings.TrimSpace(in.Amount) == "" {
		errs[FieldAmount] = "Please enter an amount"
	} else if m, err := ParseAmount(in.Amount); err != nil {
		errs[FieldAmount] = "Amount must be greater than 0"
	} else {
		d.Amount = m
	}

	cat := strings.TrimSpace(in.Category)
	switch {
	case cat == "":
		errs[FieldCategory] = MsgPickCategory
	case !core.IsKnownCategory(cat):
		errs[FieldCategory] = fmt.Sprintf("Unknown category %q", cat)
	default:
		d.Category = cat
	}

	if strings.TrimSpace(in.Date) == "" {
		errs[FieldDate] = "Please pick a date"
	} else if date, err := core.ParseDate(in.Date); err != nil {
		errs[FieldDate] = "Date must be YYYY-MM-DD"
	} else {
		d.Date = date
	}

	d.Note = in.Note

	if len(errs) > 0 {
		return Draft{}, &ValidationError{Fields: errs}
	}
	return d, nil
}

// Build validates in and assigns newID.
func Build(in Input, newID func() string) (core.Expense, error) {
	d, err := Validate(in)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:       newID(),
		Amount:   d.Amount,
		Category: d.Category,
		Note:     d.Note,
		Date:     d.Date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}
