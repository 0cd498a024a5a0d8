package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and form format of a calendar day.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day with no time-of-day component. The zero value
	// means "no date".
	Date struct {
		time.Time
	}

	// Money holds an amount in integer cents.
	Money struct {
		Cents int64
	}

	// Expense is one recorded spending event.
	Expense struct {
		ID       string `json:"id"`
		Amount   Money  `json:"amount"`
		Category string `json:"category"`
		Note     string `json:"note"`
		Date     Date   `json:"date"`
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyID       = errors.New("empty id")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. Out-of-range days such as
// 2024-02-30 are rejected rather than normalized.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// String returns the YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Compare orders two dates by calendar day.
func (d Date) Compare(other Date) int {
	switch {
	case d.Before(other.Time):
		return -1
	case d.After(other.Time):
		return 1
	default:
		return 0
	}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, bytes.TrimSpace(b))
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants of a newly created record. Records read
// back from storage are not re-validated.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := e.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return nil
}
