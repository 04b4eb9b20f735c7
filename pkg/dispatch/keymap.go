package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/teslashibe/go-picarx/pkg/movement"
)

// ActionKind says what a key binding does.
type ActionKind int

const (
	// ActionManeuver runs a maneuver.
	ActionManeuver ActionKind = iota
	// ActionStop stops the robot and keeps going.
	ActionStop
	// ActionExit stops the robot and ends the dispatcher.
	ActionExit
)

// Binding maps one key to an action.
type Binding struct {
	Key      rune
	Label    string
	Group    string
	Kind     ActionKind
	Maneuver movement.Maneuver
}

// KeyMap maps lower-case keys to bindings.
type KeyMap map[rune]Binding

// Lookup finds the binding for r, ignoring case.
func (k KeyMap) Lookup(r rune) (Binding, bool) {
	b, ok := k[unicode.ToLower(r)]
	return b, ok
}

// Groups in menu order.
var menuGroups = []string{"Basic Movement", "Parallel Parking", "Three-Point Turn (K-Turn)", "Control"}

// DefaultKeyMap returns the standard bindings:
//
//	w/s   forward/backward
//	a/d   forward with left/right turn
//	q/e   parallel park left/right
//	z/c   K-turn left/right
//	space stop, x exit
func DefaultKeyMap() KeyMap {
	drive := func(dir movement.Direction, angle int) movement.Maneuver {
		m, err := movement.DriveStraight(dir, movement.DefaultSpeed, movement.DefaultHold, angle)
		if err != nil {
			panic(err)
		}
		return m
	}

	bindings := []Binding{
		{Key: 'w', Group: menuGroups[0], Maneuver: drive(movement.Forward, 0)},
		{Key: 's', Group: menuGroups[0], Maneuver: drive(movement.Backward, 0)},
		{Key: 'a', Group: menuGroups[0], Maneuver: drive(movement.Forward, -25)},
		{Key: 'd', Group: menuGroups[0], Maneuver: drive(movement.Forward, 25)},
		{Key: 'q', Group: menuGroups[1], Maneuver: movement.ParallelPark(movement.Left)},
		{Key: 'e', Group: menuGroups[1], Maneuver: movement.ParallelPark(movement.Right)},
		{Key: 'z', Group: menuGroups[2], Maneuver: movement.KTurn(movement.Left)},
		{Key: 'c', Group: menuGroups[2], Maneuver: movement.KTurn(movement.Right)},
		{Key: ' ', Group: menuGroups[3], Kind: ActionStop, Label: "Emergency STOP"},
		{Key: 'x', Group: menuGroups[3], Kind: ActionExit, Label: "Exit program"},
	}

	km := make(KeyMap, len(bindings))
	for _, b := range bindings {
		if b.Kind == ActionManeuver {
			b.Label = b.Maneuver.Label
		}
		km[b.Key] = b
	}
	return km
}

// Menu renders the key bindings grouped for display.
func (k KeyMap) Menu() string {
	byGroup := make(map[string][]Binding)
	var extra []string
	for _, b := range k {
		if _, known := byGroup[b.Group]; !known && !contains(menuGroups, b.Group) {
			extra = append(extra, b.Group)
		}
		byGroup[b.Group] = append(byGroup[b.Group], b)
	}
	sort.Strings(extra)

	var sb strings.Builder
	for _, group := range append(append([]string{}, menuGroups...), extra...) {
		bs := byGroup[group]
		if len(bs) == 0 {
			continue
		}
		sort.Slice(bs, func(i, j int) bool { return keyOrder(bs[i].Key) < keyOrder(bs[j].Key) })
		fmt.Fprintf(&sb, "  %s:\n", group)
		for _, b := range bs {
			fmt.Fprintf(&sb, "    [%s] %s\n", keyName(b.Key), b.Label)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func keyName(r rune) string {
	if r == ' ' {
		return "SPACE"
	}
	return strings.ToUpper(string(r))
}

// keyOrder keeps the menu in keyboard order rather than alphabetical.
func keyOrder(r rune) int {
	if i := strings.IndexRune("wsadqezc x", r); i >= 0 {
		return i
	}
	return 100 + int(r)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
