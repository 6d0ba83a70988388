package agenda

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"agendaprint/internal/model"
)

// Calendar reads the VEVENTs of one iCalendar feed.
type Calendar struct {
	Location string
	Client   *http.Client
}

func (c *Calendar) Name() string {
	return c.Location
}

// FetchEvents returns the events overlapping the local date of day, with
// recurrences expanded and cancelled events dropped, ordered by start.
func (c *Calendar) FetchEvents(ctx context.Context, day time.Time) ([]model.CalendarEvent, error) {
	cals, err := loadFeed(ctx, c.Client, c.Location)
	if err != nil {
		return nil, wrapProvider(c.Name(), err)
	}
	loc := day.Location()
	dayStart := startOfDay(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var out []model.CalendarEvent
	for _, cal := range cals {
		events := cal.Events()
		overridden := map[string]bool{}
		for _, ev := range events {
			if prop := ev.Props.Get(propRecurrenceID); prop != nil {
				if t, err := prop.DateTime(loc); err == nil {
					overridden[instanceKey(propText(ev.Component, ical.PropUID), t)] = true
				}
			}
		}
		for _, ev := range events {
			out = append(out, expandEvent(ev, loc, dayStart, dayEnd, overridden)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func expandEvent(ev ical.Event, loc *time.Location, dayStart, dayEnd time.Time, overridden map[string]bool) []model.CalendarEvent {
	if propText(ev.Component, ical.PropStatus) == statusCancelled {
		return nil
	}
	startProp := ev.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil
	}
	uid := propText(ev.Component, ical.PropUID)
	start, err := ev.DateTimeStart(loc)
	if err != nil || start.IsZero() {
		log.Printf("calendar event %q: bad start: %v", uid, err)
		return nil
	}
	allDay := startProp.ValueType() == ical.ValueDate
	end, err := ev.DateTimeEnd(loc)
	if err != nil || !end.After(start) {
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	}
	duration := end.Sub(start)
	base := model.CalendarEvent{
		ID:     uid,
		Title:  propText(ev.Component, ical.PropSummary),
		AllDay: allDay,
	}

	set, err := ev.RecurrenceSet(loc)
	if err != nil {
		log.Printf("calendar event %q: bad recurrence: %v", uid, err)
		set = nil
	}
	isOverride := ev.Props.Get(propRecurrenceID) != nil
	if set == nil || isOverride {
		if !overlaps(start, end, dayStart, dayEnd) {
			return nil
		}
		base.Start, base.End = start, end
		return []model.CalendarEvent{base}
	}

	var out []model.CalendarEvent
	for _, occ := range occurrences(set, dayStart.Add(-duration), dayEnd, loc) {
		occEnd := occ.Add(duration)
		if !overlaps(occ, occEnd, dayStart, dayEnd) || overridden[instanceKey(uid, occ)] {
			continue
		}
		inst := base
		inst.ID = uid + "@" + strconv.FormatInt(occ.Unix(), 10)
		inst.Start, inst.End = occ, occEnd
		out = append(out, inst)
	}
	return out
}

// occurrences lists the recurrence instances starting in [from, to].
func occurrences(set *rrule.Set, from, to time.Time, loc *time.Location) []time.Time {
	out := set.Between(from, to, true)
	for i := range out {
		out[i] = out[i].In(loc)
	}
	return out
}

func overlaps(start, end, dayStart, dayEnd time.Time) bool {
	if !end.After(start) {
		return !start.Before(dayStart) && start.Before(dayEnd)
	}
	return start.Before(dayEnd) && end.After(dayStart)
}

func instanceKey(uid string, t time.Time) string {
	return uid + "|" + strconv.FormatInt(t.Unix(), 10)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
