package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dock-queue-backend/internal/model"
)

// Interval is one concrete busy window produced by expanding a rule.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the interval overlaps [start, end).
func (iv Interval) Overlaps(start, end time.Time) bool {
	return iv.Start.Before(end) && start.Before(iv.End)
}

// maxOccurrences caps expansion so a misconfigured rule cannot run away.
const maxOccurrences = 1000

// Validate checks the shape of a rule before it is stored or expanded.
func Validate(rule *model.BusyTimeRule) error {
	if !rule.To.After(rule.From) {
		return fmt.Errorf("rule %d: 'to' must be after 'from'", rule.ID)
	}
	fy, fm, fd := rule.From.Date()
	ty, tm, td := rule.To.Date()
	if fy != ty || fm != tm || fd != td {
		return fmt.Errorf("rule %d: busy window must not wrap midnight", rule.ID)
	}
	switch rule.Recurrence {
	case model.RecurrenceNone, model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly:
	default:
		return fmt.Errorf("rule %d: unknown recurrence %q", rule.ID, rule.Recurrence)
	}
	if rule.Step < 1 {
		return fmt.Errorf("rule %d: step must be >= 1", rule.ID)
	}
	if rule.CustomDays != "" {
		if rule.Recurrence != model.RecurrenceWeekly {
			return fmt.Errorf("rule %d: custom days are only valid for weekly recurrence", rule.ID)
		}
		if _, err := parseCustomDays(rule.CustomDays); err != nil {
			return fmt.Errorf("rule %d: %w", rule.ID, err)
		}
	}
	return nil
}

// Resolve expands a rule into the concrete busy intervals overlapping
// [windowStart, windowEnd). The result is de-duplicated and sorted by start.
// Expansion is bounded by the window and by maxOccurrences.
func Resolve(rule model.BusyTimeRule, windowStart, windowEnd time.Time) []Interval {
	if !windowEnd.After(windowStart) {
		return nil
	}

	step := rule.Step
	if step < 1 {
		step = 1
	}

	var out []Interval
	switch rule.Recurrence {
	case model.RecurrenceNone:
		iv := Interval{Start: rule.From, End: rule.To}
		if iv.Overlaps(windowStart, windowEnd) {
			out = append(out, iv)
		}
	case model.RecurrenceDaily:
		out = resolveByDays(rule, step, windowStart, windowEnd)
	case model.RecurrenceWeekly:
		if rule.CustomDays != "" {
			out = resolveCustomWeekdays(rule, windowStart, windowEnd)
		} else {
			out = resolveByDays(rule, step*7, windowStart, windowEnd)
		}
	case model.RecurrenceMonthly:
		out = resolveMonthly(rule, step, windowStart, windowEnd)
	}

	return dedupe(out)
}

// resolveByDays yields the anchor's wall-clock interval every stepDays
// calendar days, starting at the anchor date.
func resolveByDays(rule model.BusyTimeRule, stepDays int, windowStart, windowEnd time.Time) []Interval {
	// Jump straight to the first cycle that can still reach the window.
	k := 0
	if diff := daysBetween(rule.From, windowStart); diff > 0 {
		k = (diff - 1) / stepDays
	}

	var out []Interval
	for n := 0; n < maxOccurrences; n++ {
		day := rule.From.AddDate(0, 0, (k+n)*stepDays)
		iv := intervalOn(rule, day)
		if !iv.Start.Before(windowEnd) {
			break
		}
		if iv.Overlaps(windowStart, windowEnd) {
			out = append(out, iv)
		}
	}
	return out
}

// resolveCustomWeekdays yields one interval per matching weekday per week,
// ignoring the step. Occurrences never precede the anchor date.
func resolveCustomWeekdays(rule model.BusyTimeRule, windowStart, windowEnd time.Time) []Interval {
	days, err := parseCustomDays(rule.CustomDays)
	if err != nil {
		return nil
	}

	first := rule.From
	if diff := daysBetween(rule.From, windowStart); diff > 1 {
		first = rule.From.AddDate(0, 0, diff-1)
	}

	var out []Interval
	for n := 0; n < maxOccurrences; n++ {
		day := first.AddDate(0, 0, n)
		iv := intervalOn(rule, day)
		if !iv.Start.Before(windowEnd) {
			break
		}
		if !days[day.Weekday()] {
			continue
		}
		if iv.Overlaps(windowStart, windowEnd) {
			out = append(out, iv)
		}
	}
	return out
}

// resolveMonthly yields the anchor's day-of-month every step months. Months
// lacking that day (e.g. the 31st in February) are skipped, never clamped.
func resolveMonthly(rule model.BusyTimeRule, step int, windowStart, windowEnd time.Time) []Interval {
	year, month, day := rule.From.Date()
	loc := rule.From.Location()
	// Anchor to the first of the month so AddDate cannot normalize across
	// month boundaries (Jan 31 + 1 month would land in March).
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, loc)

	var out []Interval
	for n := 0; n < maxOccurrences; n++ {
		m := firstOfMonth.AddDate(0, n*step, 0)
		candidate := time.Date(m.Year(), m.Month(), day, 0, 0, 0, 0, loc)
		if candidate.Month() != m.Month() {
			continue // day-of-month does not exist in this month
		}
		iv := intervalOn(rule, candidate)
		if !iv.Start.Before(windowEnd) {
			break
		}
		if iv.Overlaps(windowStart, windowEnd) {
			out = append(out, iv)
		}
	}
	return out
}

// intervalOn projects the rule's wall-clock start/end onto the given day.
func intervalOn(rule model.BusyTimeRule, day time.Time) Interval {
	y, m, d := day.Date()
	loc := rule.From.Location()
	return Interval{
		Start: time.Date(y, m, d, rule.From.Hour(), rule.From.Minute(), rule.From.Second(), 0, loc),
		End:   time.Date(y, m, d, rule.To.Hour(), rule.To.Minute(), rule.To.Second(), 0, loc),
	}
}

// daysBetween returns the number of calendar days from a's date to b's date.
// Both dates are normalized to midnight UTC so DST shifts cannot skew the count.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

func parseCustomDays(raw string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q in custom day set", part)
		}
		days[time.Weekday(n)] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("custom day set is empty")
	}
	return days, nil
}

func dedupe(ivs []Interval) []Interval {
	if len(ivs) < 2 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })
	out := ivs[:1]
	for _, iv := range ivs[1:] {
		last := out[len(out)-1]
		if iv.Start.Equal(last.Start) && iv.End.Equal(last.End) {
			continue
		}
		out = append(out, iv)
	}
	return out
}
