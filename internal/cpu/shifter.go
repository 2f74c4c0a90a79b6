package cpu

import "github.com/gba-emu/goadvance/internal/bits"

// ShiftType selects one of the four barrel-shifter operations.
type ShiftType uint8

const (
	LSL ShiftType = iota
	LSR
	ASR
	ROR
)

// barrelShift implements §4.7's barrel shifter, shared by ARM data
// processing and THUMB move-shifted-register. immediate distinguishes the
// immediate-shift-amount-of-0 special cases (treated as #32, or RRX for
// ROR) from the register-specified-shift-amount-of-0 passthrough.
func barrelShift(shift ShiftType, value uint32, amount uint32, carryIn bool, immediate bool) (result uint32, carryOut bool) {
	if !immediate && amount == 0 {
		return value, carryIn
	}

	switch shift {
	case LSL:
		switch {
		case amount == 0:
			return value, carryIn
		case amount < 32:
			return value << amount, (value>>(32-amount))&1 != 0
		case amount == 32:
			return 0, value&1 != 0
		default:
			return 0, false
		}
	case LSR:
		eff := amount
		if immediate && amount == 0 {
			eff = 32
		}
		switch {
		case eff == 0:
			return value, carryIn
		case eff < 32:
			return value >> eff, (value>>(eff-1))&1 != 0
		case eff == 32:
			return 0, value&(1<<31) != 0
		default:
			return 0, false
		}
	case ASR:
		eff := amount
		if immediate && amount == 0 {
			eff = 32
		}
		signed := int32(value)
		switch {
		case eff == 0:
			return value, carryIn
		case eff < 32:
			return uint32(signed >> eff), (value>>(eff-1))&1 != 0
		default:
			if value&(1<<31) != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
	case ROR:
		if immediate && amount == 0 {
			// RRX: 33-bit rotate through carry.
			out := (value >> 1) | boolToBit(carryIn)<<31
			return out, value&1 != 0
		}
		eff := amount & 31
		if eff == 0 {
			if amount == 0 {
				return value, carryIn
			}
			return value, value&(1<<31) != 0
		}
		return bits.RotateRight32(value, uint(eff)), (value>>(eff-1))&1 != 0
	}
	return value, carryIn
}

func rotateRight(v uint32, n uint32) uint32 {
	return bits.RotateRight32(v, uint(n))
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
