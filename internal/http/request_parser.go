// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for common
// form parsing, range extraction, and input sanitization patterns.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spendly/internal/form"
)

// RangeParams holds the raw start/end query values of a summary request.
type RangeParams struct {
	Start string
	End   string
}

// ParseRangeParams extracts the optional start and end bounds. Absent values
// stay empty, which leaves that side of the range open.
func ParseRangeParams(query url.Values) RangeParams {
	return RangeParams{
		Start: strings.TrimSpace(sanitizeInput(query.Get("start"))),
		End:   strings.TrimSpace(sanitizeInput(query.Get("end"))),
	}
}

// ParseExpenseInput reads the entry form fields from p.
func ParseExpenseInput(p *RequestBodyParser) form.Input {
	return form.Input{
		Amount:   p.Get(form.FieldAmount),
		Category: p.Get(form.FieldCategory),
		Note:     p.Get(form.FieldNote),
		Date:     p.Get(form.FieldDate),
	}
}

// IsConfirmed reports whether a destructive request carries confirm=yes,
// either in the query string or in the body.
func IsConfirmed(r *http.Request, p *RequestBodyParser) bool {
	if strings.EqualFold(r.URL.Query().Get("confirm"), "yes") {
		return true
	}
	return p != nil && strings.EqualFold(p.Get("confirm"), "yes")
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// maxBodyBytes caps a request body; an entry form is a few hundred bytes.
const maxBodyBytes = 64 << 10

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}

	p.body, p.err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an untyped value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
