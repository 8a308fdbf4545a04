// Package parser parses the ISO-8601 date/time fields of corpus records and splits
// segmented comment text into tokens.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/starford/commentnet/internal/models"
)

const timeLayout = "15:04:05"

var (
	// punctRe matches tokens made only of punctuation or symbols.
	punctRe = regexp.MustCompile(`^[\p{P}\p{S}]+$`)
	clockRe = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseTime validates a time of day (HH:MM:SS or HH:MM) and returns it normalised to
// HH:MM:SS. An empty string is accepted and returned unchanged.
func ParseTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if !clockRe.MatchString(s) {
		return "", fmt.Errorf("invalid time %q: want HH:MM:SS", s)
	}
	if len(s) == len("15:04") {
		s += ":00"
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Format(timeLayout), nil
}

// FormatDate renders d as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(models.DateLayout)
}

// Tokenize splits segmented text on any Unicode white space (the corpus joins words
// with ASCII spaces or U+3000), lower-cases tokens and drops punctuation-only tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, unicode.IsSpace)
	out := fields[:0]
	for _, f := range fields {
		if punctRe.MatchString(f) {
			continue
		}
		out = append(out, strings.ToLower(f))
	}
	return out
}
