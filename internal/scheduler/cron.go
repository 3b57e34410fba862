package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Cron is a parsed 5-field cron expression: minute, hour, day-of-month,
// month, day-of-week. Each field is a bitmask of the values it allows.
type Cron struct {
	expr   string
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCron parses a standard 5-field cron expression.
// Supports: *, */N, N, N-M, N-M/S and comma-separated lists of those.
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}
	var masks [5]uint64
	for i, f := range cronFields {
		m, err := parseCronField(fields[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", f.name, err)
		}
		masks[i] = m
	}
	return &Cron{
		expr:   strings.Join(fields, " "),
		minute: masks[0],
		hour:   masks[1],
		dom:    masks[2],
		month:  masks[3],
		dow:    masks[4],
	}, nil
}

// MustParseCron is ParseCron for expressions known at compile time.
func MustParseCron(expr string) *Cron {
	c, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Cron) String() string { return c.expr }

// Matches reports whether t, truncated to the minute, is allowed.
func (c *Cron) Matches(t time.Time) bool {
	return has(c.minute, t.Minute()) &&
		has(c.hour, t.Hour()) &&
		has(c.dom, t.Day()) &&
		has(c.month, int(t.Month())) &&
		has(c.dow, int(t.Weekday()))
}

// Next returns the first matching minute strictly after t, searching up to
// two years ahead. It returns the zero time if nothing matches.
func (c *Cron) Next(t time.Time) time.Time {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(2, 0, 0)
	loc := candidate.Location()

	for candidate.Before(limit) {
		switch {
		case !has(c.month, int(candidate.Month())):
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, loc)
		case !has(c.dom, candidate.Day()) || !has(c.dow, int(candidate.Weekday())):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, 0, 0, 0, 0, loc)
		case !has(c.hour, candidate.Hour()):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour()+1, 0, 0, 0, loc)
		case !has(c.minute, candidate.Minute()):
			candidate = candidate.Add(time.Minute)
		default:
			return candidate
		}
	}
	return time.Time{}
}

// Values lists the allowed values of field i (0 = minute ... 4 = day-of-week).
func (c *Cron) Values(i int) []int {
	masks := [5]uint64{c.minute, c.hour, c.dom, c.month, c.dow}
	if i < 0 || i >= len(masks) {
		return nil
	}
	m := masks[i]
	out := make([]int, 0, bits.OnesCount64(m))
	for m != 0 {
		v := bits.TrailingZeros64(m)
		out = append(out, v)
		m &^= 1 << v
	}
	return out
}

func has(mask uint64, v int) bool {
	return v >= 0 && v < 64 && mask&(1<<v) != 0
}

func parseCronField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parseCronPart(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

// parseCronPart parses a single part: *, */N, N, N-M, N-M/S.
func parseCronPart(part string, min, max int) (uint64, error) {
	rangePart, stepPart, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepPart)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step %q", part)
		}
		step = s
	}

	lo, hi := min, max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("invalid range start %q", a)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("invalid range end %q", b)
		}
		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
		}
	default:
		if hasStep {
			return 0, fmt.Errorf("step without range in %q", part)
		}
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		if v < min || v > max {
			return 0, fmt.Errorf("value %d out of bounds [%d,%d]", v, min, max)
		}
		lo, hi = v, v
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << v
	}
	return mask, nil
}
