package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/calendar-agent/internal/model"
)

const promptClockLayout = "Monday, January 2, 2006 at 3:04:05 PM MST"

var promptColors = []string{
	"PALE_BLUE", "PALE_GREEN", "MAUVE", "PALE_RED", "YELLOW", "ORANGE",
	"CYAN", "GRAY", "BLUE", "GREEN", "RED",
}

// SystemPrompt builds the instructions sent with every request. Example
// times are computed from now so the model sees realistic instants.
func SystemPrompt(loc *time.Location, now time.Time) string {
	local := now.In(loc)
	tomorrow := local.AddDate(0, 0, 1)
	exampleStart := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 14, 0, 0, 0, loc)
	exampleEnd := exampleStart.Add(time.Hour)

	var b strings.Builder

	b.WriteString("You are an advanced Calendar Assistant with full access to the Google Calendar API.\n")
	b.WriteString("You must output ONLY valid JSON.\n\n")

	b.WriteString("TIMEZONE INFORMATION:\n")
	fmt.Fprintf(&b, "- User's timezone: %s\n", loc)
	fmt.Fprintf(&b, "- Current date/time: %s\n", local.Format(promptClockLayout))
	fmt.Fprintf(&b, "- All times should be interpreted in %s\n\n", loc)

	b.WriteString("AVAILABLE ACTIONS:\n")
	fmt.Fprintf(&b, "1. %s - Create a timed event with optional color, location and description\n", model.ActionCreateEvent)
	fmt.Fprintf(&b, "2. %s - Create an all-day event (single or multi-day)\n", model.ActionCreateAllDayEvent)
	fmt.Fprintf(&b, "3. %s - Create RECURRING events (daily, weekly, monthly)\n", model.ActionCreateEventSeries)
	fmt.Fprintf(&b, "4. %s - Retrieve events for a specific day (params: {\"date\": \"YYYY-MM-DD\"})\n\n", model.ActionGetEventsForDay)

	b.WriteString("EVENT COLORS (use these exact strings):\n")
	fmt.Fprintf(&b, "- \"%s\"\n\n", strings.Join(promptColors, `", "`))

	b.WriteString("RECURRENCE TYPES:\n")
	b.WriteString("- daily: Every day or every N days\n")
	fmt.Fprintf(&b, "- weekly: Every week on specific days (%s)\n", strings.Join(model.Weekdays, ", "))
	b.WriteString("- monthly: Every month\n")
	b.WriteString("- Bound a series with \"times\" (occurrence count) or \"until\" (ISO timestamp), never both\n\n")

	b.WriteString("CRITICAL RULES:\n")
	b.WriteString("1. Times: \"2pm\" = 14:00, \"10am\" = 10:00 (24-hour format)\n")
	b.WriteString("2. ISO timestamps: YYYY-MM-DDTHH:mm:ss.sssZ (UTC)\n")
	b.WriteString("3. Default duration: 1 hour if not specified\n")
	b.WriteString("4. Recurring keywords: \"every week\", \"weekly\", \"recurring\", \"every day\", \"daily\"\n")
	b.WriteString("5. Color keywords: \"blue meeting\", \"red event\", \"make it green\"\n\n")

	writeExample(&b, 1, "Simple Event", "Meeting tomorrow at 2pm", model.ActionCreateEvent, fmt.Sprintf(
		`"title": "Meeting", "startTime": %q, "endTime": %q, "description": ""`,
		model.FormatWireTime(exampleStart), model.FormatWireTime(exampleEnd)))

	writeExample(&b, 2, "Event with Color", "Blue team standup at 10am tomorrow", model.ActionCreateEvent,
		`"title": "Team standup", "startTime": "2025-11-25T15:00:00.000Z", "endTime": "2025-11-25T16:00:00.000Z", "color": "BLUE", "description": ""`)

	writeExample(&b, 3, "Recurring Event (Weekly)", "Math class every Monday and Wednesday at 2pm", model.ActionCreateEventSeries,
		`"title": "Math class", "startTime": "2025-11-25T19:00:00.000Z", "endTime": "2025-11-25T20:00:00.000Z", `+
			`"recurrence": {"type": "weekly", "days": ["MONDAY", "WEDNESDAY"], "interval": 1}, "description": ""`)

	writeExample(&b, 4, "Recurring Daily", "Gym every day at 6am for 30 days", model.ActionCreateEventSeries,
		`"title": "Gym", "startTime": "2025-11-25T11:00:00.000Z", "endTime": "2025-11-25T12:00:00.000Z", `+
			`"recurrence": {"type": "daily", "interval": 1, "times": 30}, "description": ""`)

	b.WriteString("KEYWORD DETECTION:\n")
	b.WriteString("- \"every week/weekly\" -> createEventSeries with type: \"weekly\"\n")
	b.WriteString("- \"every day/daily\" -> createEventSeries with type: \"daily\"\n")
	b.WriteString("- \"recurring/repeating\" -> createEventSeries\n")
	b.WriteString("- \"all day\" -> createAllDayEvent\n")
	b.WriteString("- Color names (blue, red, green, etc.) -> add \"color\" parameter\n\n")

	fmt.Fprintf(&b, "Current Date/Time: %s (%s)\n", model.FormatWireTime(now), loc)

	return b.String()
}

func writeExample(b *strings.Builder, n int, title, user string, action model.ActionKind, params string) {
	fmt.Fprintf(b, "EXAMPLE %d: %s\n", n, title)
	fmt.Fprintf(b, "User: %q\n", user)
	fmt.Fprintf(b, "{\"actions\": [{\"action\": %q, \"params\": {%s}}]}\n\n", action, params)
}
