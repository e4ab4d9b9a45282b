package color

import "testing"

func TestSlotForRecognizedNames(t *testing.T) {
	tests := []struct {
		name   string
		slot   Slot
		swatch string
	}{
		{"YELLOW", SlotYellow, "#FEF3C7"},
		{"GREEN", SlotGreen, "#D1FAE5"},
		{"RED", SlotRed, "#FEE2E2"},
		{"BLUE", SlotBlue, "#DBEAFE"},
		{"ORANGE", SlotOrange, "#FED7AA"},
		{"PURPLE", SlotPurple, "#E9D5FF"},
		{"GRAY", SlotYellow, "#FEF3C7"},
		{"PALE_BLUE", SlotBlue, "#DBEAFE"},
		{"CYAN", SlotBlue, "#DBEAFE"},
		{"PALE_GREEN", SlotGreen, "#D1FAE5"},
		{"PALE_RED", SlotRed, "#FEE2E2"},
		{"MAUVE", SlotPurple, "#E9D5FF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := SlotFor(tt.name)
			if slot != tt.slot {
				t.Fatalf("SlotFor(%q) = %q, want %q", tt.name, slot, tt.slot)
			}
			for i := 0; i < 3; i++ {
				if got := SwatchFor(SlotFor(tt.name)); got != tt.swatch {
					t.Fatalf("SwatchFor(SlotFor(%q)) = %q, want %q", tt.name, got, tt.swatch)
				}
			}
		})
	}
}

func TestSlotForUnknownFallsBack(t *testing.T) {
	for _, name := range []string{"", "blue", "MAGENTA", "  RED", "PINK"} {
		if got := SlotFor(name); got != DefaultSlot {
			t.Errorf("SlotFor(%q) = %q, want default %q", name, got, DefaultSlot)
		}
	}
}

func TestSwatchAndNameForUnknownSlot(t *testing.T) {
	if got := SwatchFor("42"); got != DefaultSwatch {
		t.Errorf("SwatchFor(unknown) = %q", got)
	}
	if got := NameFor("42"); got != DefaultName {
		t.Errorf("NameFor(unknown) = %q", got)
	}
}

func TestNameForRoundTripsBaseColors(t *testing.T) {
	for _, name := range []string{"YELLOW", "GREEN", "RED", "BLUE", "ORANGE", "PURPLE"} {
		if got := NameFor(SlotFor(name)); got != name {
			t.Errorf("NameFor(SlotFor(%q)) = %q", name, got)
		}
	}
	// Aliases collapse onto their base color.
	if got := NameFor(SlotFor("CYAN")); got != "BLUE" {
		t.Errorf("NameFor(SlotFor(CYAN)) = %q, want BLUE", got)
	}
}

func TestOptionsAreKnownSlots(t *testing.T) {
	opts := Options()
	if len(opts) != 6 {
		t.Fatalf("expected 6 options, got %d", len(opts))
	}
	for _, o := range opts {
		if !Known(o.Slot) {
			t.Errorf("option slot %q is not known", o.Slot)
		}
		if o.Swatch != SwatchFor(o.Slot) {
			t.Errorf("option %s swatch %q != %q", o.Label, o.Swatch, SwatchFor(o.Slot))
		}
	}

	opts[0].Label = "mutated"
	if Options()[0].Label == "mutated" {
		t.Error("Options must return a copy")
	}
}
