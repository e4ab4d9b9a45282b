// Package color maps the AI's color vocabulary onto calendar color slots and
// the swatches shown to reviewers.
package color

// Slot is the external calendar's identifier for a color choice.
type Slot string

const (
	SlotYellow Slot = "5"
	SlotGreen  Slot = "10"
	SlotRed    Slot = "11"
	SlotBlue   Slot = "9"
	SlotOrange Slot = "6"
	SlotPurple Slot = "3"

	// DefaultSlot is used for missing or unrecognized colors.
	DefaultSlot = SlotYellow
)

const (
	DefaultName   = "YELLOW"
	DefaultSwatch = "#FEF3C7"
)

var slotsByName = map[string]Slot{
	"YELLOW":     SlotYellow,
	"GREEN":      SlotGreen,
	"RED":        SlotRed,
	"BLUE":       SlotBlue,
	"ORANGE":     SlotOrange,
	"PURPLE":     SlotPurple,
	"GRAY":       SlotYellow,
	"PALE_BLUE":  SlotBlue,
	"PALE_GREEN": SlotGreen,
	"PALE_RED":   SlotRed,
	"MAUVE":      SlotPurple,
	"CYAN":       SlotBlue,
}

var swatchesBySlot = map[Slot]string{
	SlotYellow: "#FEF3C7",
	SlotGreen:  "#D1FAE5",
	SlotRed:    "#FEE2E2",
	SlotBlue:   "#DBEAFE",
	SlotOrange: "#FED7AA",
	SlotPurple: "#E9D5FF",
}

var namesBySlot = map[Slot]string{
	SlotYellow: "YELLOW",
	SlotGreen:  "GREEN",
	SlotRed:    "RED",
	SlotBlue:   "BLUE",
	SlotOrange: "ORANGE",
	SlotPurple: "PURPLE",
}

// Option is one entry of the palette offered to reviewers.
type Option struct {
	Slot   Slot   `json:"slot"`
	Label  string `json:"label"`
	Swatch string `json:"swatch"`
	Border string `json:"border"`
}

var options = []Option{
	{Slot: SlotYellow, Label: "Yellow", Swatch: "#FEF3C7", Border: "#FDE68A"},
	{Slot: SlotGreen, Label: "Green", Swatch: "#D1FAE5", Border: "#A7F3D0"},
	{Slot: SlotRed, Label: "Red", Swatch: "#FEE2E2", Border: "#FECACA"},
	{Slot: SlotBlue, Label: "Blue", Swatch: "#DBEAFE", Border: "#BFDBFE"},
	{Slot: SlotOrange, Label: "Orange", Swatch: "#FED7AA", Border: "#FDBA74"},
	{Slot: SlotPurple, Label: "Purple", Swatch: "#E9D5FF", Border: "#D8B4FE"},
}

// SlotFor maps a color name to its slot. Names are case-sensitive; unknown
// names fall back to DefaultSlot.
func SlotFor(name string) Slot {
	if slot, ok := slotsByName[name]; ok {
		return slot
	}
	return DefaultSlot
}

// SwatchFor returns the display swatch for a slot.
func SwatchFor(slot Slot) string {
	if swatch, ok := swatchesBySlot[slot]; ok {
		return swatch
	}
	return DefaultSwatch
}

// NameFor returns the wire color name for a slot.
func NameFor(slot Slot) string {
	if name, ok := namesBySlot[slot]; ok {
		return name
	}
	return DefaultName
}

// Known reports whether slot is one of the fixed slots.
func Known(slot Slot) bool {
	_, ok := swatchesBySlot[slot]
	return ok
}

// Names returns every recognized color name.
func Names() []string {
	return []string{
		"YELLOW", "GREEN", "RED", "BLUE", "ORANGE", "PURPLE", "GRAY",
		"PALE_BLUE", "PALE_GREEN", "PALE_RED", "MAUVE", "CYAN",
	}
}

// Options returns the editable palette in display order.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}
