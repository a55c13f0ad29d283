package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is the fiscal year and quarter a record belongs to.
// Either field is -1 when it could not be determined.
type Period struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// UnknownPeriod is returned for dates that cannot be split into day, month and year.
var UnknownPeriod = Period{Year: -1, Quarter: -1}

// Valid reports whether the period is usable for filtering. Years up to and
// including 2000 are treated as parse artefacts.
func (p Period) Valid() bool {
	return p.Year > 2000 && p.Quarter >= 1 && p.Quarter <= 4
}

// HasYear reports whether the year was read. Records are accepted on the
// year alone; a bad month only leaves the quarter unknown.
func (p Period) HasYear() bool {
	return p.Year > 2000
}

func (p Period) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// ParseDate derives the fiscal period from a day/month/year date using '/',
// '-' or '.' as separator. A four digit leading part is read as year/month/day.
// Two digit years are taken as 20yy.
func ParseDate(raw string) Period {
	parts := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 {
		return UnknownPeriod
	}

	monthPart, yearPart := parts[1], parts[2]
	if len(strings.TrimSpace(parts[0])) == 4 {
		yearPart = parts[0]
	}

	year, err := strconv.Atoi(leadingDigits(yearPart))
	if err != nil {
		return UnknownPeriod
	}
	if year < 100 {
		year += 2000
	}

	quarter := -1
	if month, err := strconv.Atoi(leadingDigits(monthPart)); err == nil && month >= 1 && month <= 12 {
		quarter = (month + 2) / 3
	}

	return Period{Year: year, Quarter: quarter}
}

// leadingDigits keeps the digit prefix so "2025 00:00:00" still yields a year.
func leadingDigits(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
