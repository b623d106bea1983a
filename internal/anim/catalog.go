package anim

import (
	"fmt"

	"github.com/grdaneault/hydration-helper/internal/pixel"
)

// Named animations.
var (
	SolidBlue      = Solid{Color: pixel.Blue}
	SolidRed       = Solid{Color: pixel.Red}
	GreenPulse     = Pulse{Color: pixel.Green, Cycles: 1, Brightness: 1.0}
	BluePulse      = Pulse{Color: pixel.Blue, Cycles: 1, Brightness: 1.0}
	LightBluePulse = Pulse{Color: pixel.Blue, Cycles: 1, Brightness: 0.25}
	RedPulse1      = Pulse{Color: pixel.Red, Cycles: 1, Brightness: 0.25}
	RedPulse2      = Pulse{Color: pixel.Red, Cycles: 1, Brightness: 0.5}
	RedPulse3      = Pulse{Color: pixel.Red, Cycles: 1, Brightness: 0.75}
	RedPulse4      = Pulse{Color: pixel.Red, Cycles: 1, Brightness: 1.0}
	RedAlert       = Sparkle{A: pixel.Red, B: pixel.Orange, Seconds: 3}
	DrinkSparkle   = Sparkle{A: pixel.Green, B: pixel.Blue, Seconds: 3}
)

// Escalation lists reminder animations from gentlest to most urgent.
var Escalation = []Descriptor{RedPulse1, RedPulse2, RedPulse3, RedPulse4, RedAlert}

var catalog = []struct {
	name string
	d    Descriptor
}{
	{"off", Off{}},
	{"solid-blue", SolidBlue},
	{"solid-red", SolidRed},
	{"green-pulse", GreenPulse},
	{"blue-pulse", BluePulse},
	{"light-blue-pulse", LightBluePulse},
	{"red-pulse-1", RedPulse1},
	{"red-pulse-2", RedPulse2},
	{"red-pulse-3", RedPulse3},
	{"red-pulse-4", RedPulse4},
	{"red-alert", RedAlert},
	{"drink-sparkle", DrinkSparkle},
}

// ByName looks up a named animation.
func ByName(name string) (Descriptor, bool) {
	for _, c := range catalog {
		if c.name == name {
			return c.d, true
		}
	}
	return nil, false
}

// Names returns every catalog name in order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, c := range catalog {
		names[i] = c.name
	}
	return names
}

// Name returns the catalog name of d, or a description for unnamed animations.
func Name(d Descriptor) string {
	if d == nil {
		return "off"
	}
	for _, c := range catalog {
		if c.d == d {
			return c.name
		}
	}
	switch a := d.(type) {
	case Solid:
		return fmt.Sprintf("solid(%d,%d,%d)", a.Color.R, a.Color.G, a.Color.B)
	case Pulse:
		return fmt.Sprintf("pulse(%d,%d,%d)x%d@%.2f", a.Color.R, a.Color.G, a.Color.B, a.Cycles, a.Brightness)
	case Sparkle:
		return fmt.Sprintf("sparkle(%.1fs)", a.Seconds)
	}
	return fmt.Sprintf("%T", d)
}
