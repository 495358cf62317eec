package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidWeekday = errors.New("model: invalid weekday")

// Weekdays is a set of days indexed by time.Weekday (bit 0 = Sunday).
// The zero value is the empty set, which marks a one-shot alarm.
type Weekdays uint8

const allWeekdays Weekdays = 1<<7 - 1

var weekdayTags = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w = w.With(d)
	}
	return w
}

func (w Weekdays) With(d time.Weekday) Weekdays {
	if d < time.Sunday || d > time.Saturday {
		return w
	}
	return w | 1<<uint(d)
}

func (w Weekdays) Without(d time.Weekday) Weekdays {
	if d < time.Sunday || d > time.Saturday {
		return w
	}
	return w &^ (1 << uint(d))
}

func (w Weekdays) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return w&(1<<uint(d)) != 0
}

func (w Weekdays) Empty() bool { return w == 0 }

func (w Weekdays) IsValid() bool { return w&^allWeekdays == 0 }

func (w Weekdays) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			n++
		}
	}
	return n
}

// Days returns the members in Sunday..Saturday order.
func (w Weekdays) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (w Weekdays) Tags() []string {
	days := w.Days()
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, weekdayTags[d])
	}
	return out
}

func (w Weekdays) String() string {
	switch w {
	case 0:
		return "once"
	case allWeekdays:
		return "daily"
	case NewWeekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday):
		return "weekdays"
	case NewWeekdays(time.Saturday, time.Sunday):
		return "weekends"
	}
	return strings.Join(w.Tags(), ",")
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Tags())
}

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	var out Weekdays
	for _, tag := range tags {
		d, err := ParseWeekday(tag)
		if err != nil {
			return err
		}
		out = out.With(d)
	}
	*w = out
	return nil
}

// ParseWeekday accepts short or long English names, case-insensitive.
func ParseWeekday(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tues", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thur", "thurs", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
	}
}

// ParseWeekdays parses a comma separated list. The keywords "once", "daily",
// "weekdays" and "weekends" are accepted as whole values.
func ParseWeekdays(raw string) (Weekdays, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "", "once", "none":
		return 0, nil
	case "daily", "everyday":
		return allWeekdays, nil
	case "weekdays", "weekday":
		return NewWeekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday), nil
	case "weekends", "weekend":
		return NewWeekdays(time.Saturday, time.Sunday), nil
	}
	var out Weekdays
	for _, token := range strings.Split(normalized, ",") {
		if strings.TrimSpace(token) == "" {
			continue
		}
		d, err := ParseWeekday(token)
		if err != nil {
			return 0, err
		}
		out = out.With(d)
	}
	return out, nil
}
