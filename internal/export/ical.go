package export

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/sandeepkv93/alarmd/internal/model"
)

const (
	productID     = "-//alarmd//alarm export//EN"
	eventDuration = 5 * time.Minute
	floatingStamp = "20060102T150405"
)

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

type Options struct {
	// Now anchors DTSTART at the next occurrence of each alarm.
	Now             time.Time
	IncludeInactive bool
}

// Calendar renders the alarm set as one VEVENT per alarm. Repeating alarms
// carry a weekly RRULE and every event has an AUDIO VALARM at its start.
func Calendar(alarms []model.Alarm, opts Options) *ical.Calendar {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, a := range alarms {
		if !a.IsActive && !opts.IncludeInactive {
			continue
		}
		cal.Children = append(cal.Children, alarmEvent(a, now).Component)
	}
	return cal
}

func WriteICS(w io.Writer, alarms []model.Alarm, opts Options) error {
	if err := ical.NewEncoder(w).Encode(Calendar(alarms, opts)); err != nil {
		return fmt.Errorf("export: encode calendar: %w", err)
	}
	return nil
}

func alarmEvent(a model.Alarm, now time.Time) *ical.Event {
	start := model.NextFire(a, now)

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, a.ID+"@alarmd")
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	setLocalDateTime(event.Props, ical.PropDateTimeStart, start)
	setLocalDateTime(event.Props, ical.PropDateTimeEnd, start.Add(eventDuration))

	summary := a.Label
	if summary == "" {
		summary = "Alarm " + a.Time.String()
	}
	event.Props.SetText(ical.PropSummary, summary)
	event.Props.SetText(ical.PropDescription, describe(a))
	if !a.IsActive {
		event.Props.SetText(ical.PropStatus, "CANCELLED")
	}

	if a.IsRepeating() {
		days := make([]rrule.Weekday, 0, a.RepeatDays.Len())
		for _, d := range a.RepeatDays.Days() {
			days = append(days, rruleDays[d])
		}
		event.Props.SetRecurrenceRule(&rrule.ROption{Freq: rrule.WEEKLY, Byweekday: days})
	}

	valarm := ical.NewComponent(ical.CompAlarm)
	valarm.Props.SetText(ical.PropAction, "AUDIO")
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "PT0S"
	valarm.Props.Set(trigger)
	event.Children = append(event.Children, valarm)
	return event
}

// setLocalDateTime writes a zoned time when the location has an IANA name and
// a floating local time otherwise.
func setLocalDateTime(props ical.Props, name string, t time.Time) {
	loc := t.Location()
	if loc == time.UTC || loc.String() != "Local" {
		props.SetDateTime(name, t)
		return
	}
	prop := ical.NewProp(name)
	prop.Value = t.Format(floatingStamp)
	props.Set(prop)
}

func describe(a model.Alarm) string {
	desc := fmt.Sprintf("Repeats: %s. Sound: %s at %d%%.", a.RepeatDays, a.SoundName, a.Volume)
	if a.SnoozeEnabled {
		limit := fmt.Sprintf("%d", a.MaxSnoozes)
		if a.SnoozeUnlimited() {
			limit = "unlimited"
		}
		desc += fmt.Sprintf(" Snooze %d min (%s).", a.SnoozeDurationMinutes, limit)
	}
	if missions := a.RequiredMissions(); len(missions) > 0 {
		desc += fmt.Sprintf(" Missions: %d.", len(missions))
	}
	return desc
}
