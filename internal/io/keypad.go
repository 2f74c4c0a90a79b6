package io

import "github.com/gba-emu/goadvance/internal/interrupt"

// Key bit indices within KEYINPUT/KEYCNT, per GBATEK.
const (
	KeyA = iota
	KeyB
	KeySelect
	KeyStart
	KeyRight
	KeyLeft
	KeyUp
	KeyDown
	KeyR
	KeyL
)

const allKeysReleased = 0x03FF

// Keypad models KEYINPUT (read-only, active-low) and KEYCNT (IRQ condition
// select). The host polls keys and calls Press/Release; everything else
// (debouncing, repeat) is a host concern.
type Keypad struct {
	input uint16 // active-low: 0 = pressed
	cnt   uint16
}

func newKeypad() Keypad { return Keypad{input: allKeysReleased} }

// Input returns the current KEYINPUT value.
func (k *Keypad) Input() uint16 { return k.input }

// Press clears bit (active-low) and checks the KEYCNT IRQ condition.
func (k *Keypad) Press(bit int, intr *interrupt.Controller) {
	k.input &^= 1 << uint(bit)
	k.checkIRQ(intr)
}

// Release sets bit and checks the KEYCNT IRQ condition.
func (k *Keypad) Release(bit int, intr *interrupt.Controller) {
	k.input |= 1 << uint(bit)
	k.checkIRQ(intr)
}

// checkIRQ evaluates KEYCNT's selected-keys/AND-OR condition against the
// current KEYINPUT state and signals the keypad interrupt when it holds.
func (k *Keypad) checkIRQ(intr *interrupt.Controller) {
	if k.cnt&(1<<14) == 0 {
		return // IRQ not enabled
	}
	selected := k.cnt & 0x3FF
	pressedMask := selected &^ k.input // bits where selected AND pressed

	var fire bool
	if k.cnt&(1<<15) != 0 {
		fire = pressedMask == selected // AND: all selected keys pressed
	} else {
		fire = pressedMask != 0 // OR: any selected key pressed
	}
	if fire {
		intr.Signal(interrupt.Keypad)
	}
}
