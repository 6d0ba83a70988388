// Package compose turns an agenda snapshot into the ordered lines of a
// printed receipt. Compose is pure: it reads nothing but its Input.
package compose

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"agendaprint/internal/model"
)

type Kind int

const (
	KindText Kind = iota
	KindRule
	KindFeed
	KindCut
)

// Style is a semantic marker. The printer decides how to render it.
type Style int

const (
	StyleNormal Style = iota
	StyleTitle
	StyleEmphasis
	StyleMuted
)

// Block is one printed line, a paper feed, or the final cut. Rules and cuts
// carry the paper width they were composed for.
type Block struct {
	Kind  Kind
	Style Style
	Text  string
	Lines int
	Width int
}

type Input struct {
	Now        time.Time
	Reason     model.Reason
	Events     []model.CalendarEvent
	Tasks      []model.TaskItem
	Priorities map[string]model.Priority
	Width      int
	// DefaultList is the task list whose name is not printed under each task.
	DefaultList string
}

const (
	DefaultWidth     = 32
	untitledEvent    = "Untitled Event"
	untitledTask     = "Untitled Task"
	highMarker       = "!!! "
	lowMarker        = "(low) "
	taskBox          = "[ ] "
	continuationPad  = "    "
	defaultTaskList  = "My Tasks"
	trailingFeedRows = 4
)

func Compose(in Input) []Block {
	width := in.Width
	if width <= 0 {
		width = DefaultWidth
	}
	b := &builder{width: width}

	b.feed(1)
	b.line(StyleTitle, "DAILY SCHEDULE")
	b.rule()
	b.line(StyleNormal, in.Now.Format("Monday 02 January 2006"))
	b.line(StyleNormal, reasonLine(in.Reason))
	b.rule()

	events := sortedEvents(in.Events)
	b.line(StyleNormal, "")
	b.line(StyleEmphasis, "CALENDAR EVENTS:")
	b.rule()
	if len(events) == 0 {
		b.line(StyleNormal, "No events today")
	}
	for _, ev := range events {
		b.line(StyleNormal, formatEvent(ev, in.Now.Location()))
	}

	tasks := groupTasks(in.Tasks, in.Priorities)
	defaultList := in.DefaultList
	if defaultList == "" {
		defaultList = defaultTaskList
	}
	b.line(StyleNormal, "")
	b.line(StyleEmphasis, "TASKS:")
	b.rule()
	if len(tasks) == 0 {
		b.line(StyleNormal, "No pending tasks")
	}
	for _, task := range tasks {
		style := taskStyle(task.Priority)
		b.line(style, formatTask(task))
		if list := strings.TrimSpace(task.List); list != "" && list != defaultList {
			b.line(style, continuationPad+"List: "+list)
		}
	}

	b.rule()
	b.line(StyleNormal, fmt.Sprintf("Events: %d | Tasks: %d", len(events), len(tasks)))
	b.feed(trailingFeedRows)
	b.blocks = append(b.blocks, Block{Kind: KindCut, Width: width})
	return b.blocks
}

// Text renders blocks as plain text, for previews and logs. width applies to
// rules and cuts that do not carry their own.
func Text(blocks []Block, width int) string {
	var sb strings.Builder
	for _, blk := range blocks {
		switch blk.Kind {
		case KindText:
			sb.WriteString(blk.Text)
			sb.WriteByte('\n')
		case KindRule:
			sb.WriteString(strings.Repeat("-", blk.RuleWidth(width)))
			sb.WriteByte('\n')
		case KindFeed:
			sb.WriteString(strings.Repeat("\n", blk.Lines))
		case KindCut:
			sb.WriteString(strings.Repeat("= ", blk.RuleWidth(width)/2))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// RuleWidth is the width of a rule or cut: its own, else fallback, else
// DefaultWidth.
func (b Block) RuleWidth(fallback int) int {
	switch {
	case b.Width > 0:
		return b.Width
	case fallback > 0:
		return fallback
	default:
		return DefaultWidth
	}
}

func reasonLine(r model.Reason) string {
	switch r.Kind {
	case model.ReasonScheduled:
		return "Scheduled print " + r.Entry.String()
	case model.ReasonTest:
		return "Printer test"
	default:
		return "Manual print"
	}
}

func sortedEvents(in []model.CalendarEvent) []model.CalendarEvent {
	out := append([]model.CalendarEvent(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func formatEvent(ev model.CalendarEvent, loc *time.Location) string {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = untitledEvent
	}
	when := "ALL DAY"
	if !ev.AllDay {
		start := ev.Start
		if loc != nil {
			start = start.In(loc)
		}
		when = start.Format("03:04 PM")
	}
	return when + " - " + title
}

// groupTasks drops completed tasks, resolves priority overrides and orders
// High, Normal, Low while keeping provider order within a group.
func groupTasks(in []model.TaskItem, overrides map[string]model.Priority) []model.TaskItem {
	out := make([]model.TaskItem, 0, len(in))
	for _, task := range in {
		if task.Completed {
			continue
		}
		if p, ok := overrides[task.ID]; ok && task.ID != "" {
			task.Priority = p
		}
		task.Priority = task.Priority.Normalize()
		out = append(out, task)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

func formatTask(task model.TaskItem) string {
	title := strings.TrimSpace(task.Title)
	if title == "" {
		title = untitledTask
	}
	switch task.Priority {
	case model.PriorityHigh:
		return taskBox + highMarker + title
	case model.PriorityLow:
		return taskBox + lowMarker + title
	default:
		return taskBox + title
	}
}

func taskStyle(p model.Priority) Style {
	switch p {
	case model.PriorityHigh:
		return StyleEmphasis
	case model.PriorityLow:
		return StyleMuted
	default:
		return StyleNormal
	}
}

type builder struct {
	width  int
	blocks []Block
}

// line appends text wrapped to the paper width.
func (b *builder) line(style Style, text string) {
	for _, l := range wrap(text, b.width, continuationPad) {
		b.blocks = append(b.blocks, Block{Kind: KindText, Style: style, Text: l})
	}
}

func (b *builder) rule() {
	b.blocks = append(b.blocks, Block{Kind: KindRule, Width: b.width})
}

func (b *builder) feed(lines int) {
	b.blocks = append(b.blocks, Block{Kind: KindFeed, Lines: lines})
}

// wrap breaks text at spaces so no line is wider than width runes. Leading
// spaces of text are kept; continuation lines start with indent, which is
// dropped when it leaves no room for text. A word longer than the remaining
// room is split.
func wrap(text string, width int, indent string) []string {
	if width < 1 {
		width = 1
	}
	if utf8.RuneCountInString(indent) >= width {
		indent = ""
	}
	lead := text[:len(text)-len(strings.TrimLeft(text, " "))]
	if utf8.RuneCountInString(lead) >= width {
		lead = ""
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	current := lead
	empty := true
	for _, word := range words {
		for {
			n := utf8.RuneCountInString(current)
			sep := 1
			if empty {
				sep = 0
			}
			if n+sep+utf8.RuneCountInString(word) <= width {
				if !empty {
					current += " "
				}
				current += word
				empty = false
				break
			}
			if !empty {
				lines = append(lines, current)
				current, empty = indent, true
				continue
			}
			room := width - n
			if room < 1 {
				room = 1
			}
			runes := []rune(word)
			if room > len(runes) {
				room = len(runes)
			}
			lines = append(lines, current+string(runes[:room]))
			word = string(runes[room:])
			current = indent
			if word == "" {
				break
			}
		}
	}
	if !empty {
		lines = append(lines, current)
	}
	return lines
}
