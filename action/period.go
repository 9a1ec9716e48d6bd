package action

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agrisense/agriquery/schema"
)

// Period is a closed date range with the label shown to the user.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// periodFromEntities turns the date entities of a classification into a
// range. A month entity and a year entity are merged into one month of that
// year. ok is false when no entity describes a range.
func periodFromEntities(ents []schema.Entity, now time.Time) (Period, bool) {
	if len(ents) == 0 {
		return Period{}, false
	}
	var month, year *schema.Entity
	for i := range ents {
		v := ents[i].Value
		if month == nil && strings.HasPrefix(v, "month_") {
			month = &ents[i]
		}
		if year == nil && strings.HasPrefix(v, "year_") {
			year = &ents[i]
		}
	}
	if month != nil && year != nil {
		m, _ := strconv.Atoi(strings.TrimPrefix(month.Value, "month_"))
		y, _ := strconv.Atoi(strings.TrimPrefix(year.Value, "year_"))
		if m >= 1 && m <= 12 && y >= 2000 && y <= 2100 {
			start := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, now.Location())
			return Period{Start: start, End: endOfMonth(start), Label: fmt.Sprintf("tháng %d năm %d", m, y)}, true
		}
	}
	return parsePeriod(ents[0].Value, now)
}

// parsePeriod resolves one date token produced by the entity extractor.
func parsePeriod(token string, now time.Time) (Period, bool) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	switch token {
	case "this_month":
		return Period{Start: thisMonth, End: endOfMonth(thisMonth), Label: "tháng này"}, true
	case "last_month":
		start := thisMonth.AddDate(0, -1, 0)
		return Period{Start: start, End: endOfMonth(start), Label: "tháng trước"}, true
	case "this_year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		return Period{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond), Label: "năm nay"}, true
	case "this_week", "last_week":
		offset := (int(today.Weekday()) + 6) % 7 // days since Monday
		monday := today.AddDate(0, 0, -offset)
		label := "tuần này"
		if token == "last_week" {
			monday = monday.AddDate(0, 0, -7)
			label = "tuần trước"
		}
		return Period{Start: monday, End: monday.AddDate(0, 0, 7).Add(-time.Nanosecond), Label: label}, true
	}

	if v, ok := strings.CutPrefix(token, "month_"); ok {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return Period{}, false
		}
		y := now.Year()
		if time.Month(m) > now.Month() {
			y--
		}
		start := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, loc)
		return Period{Start: start, End: endOfMonth(start), Label: fmt.Sprintf("tháng %d", m)}, true
	}
	if v, ok := strings.CutPrefix(token, "year_"); ok {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2100 {
			return Period{}, false
		}
		start := time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		return Period{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond), Label: "năm " + v}, true
	}
	if d, err := time.ParseInLocation(time.DateOnly, token, loc); err == nil {
		return Period{Start: d, End: d.AddDate(0, 0, 1).Add(-time.Nanosecond), Label: "ngày " + d.Format("02/01/2006")}, true
	}
	return Period{}, false
}

func endOfMonth(start time.Time) time.Time {
	return start.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

func (p Period) String() string {
	return p.Start.Format("02/01/2006") + " - " + p.End.Format("02/01/2006")
}
