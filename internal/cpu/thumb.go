package cpu

import "github.com/gba-emu/goadvance/internal/bits"

// thumbHandler executes one decoded THUMB instruction.
type thumbHandler func(c *CPU, instr uint16)

var thumbDispatch [256]thumbHandler

func init() {
	for key := 0; key < 256; key++ {
		synth := uint16(key) << 8
		thumbDispatch[key] = decodeThumb(synth)
	}
}

func bit16(instr uint16, n uint) bool { return instr&(1<<n) != 0 }
func field16(instr uint16, hi, lo uint) uint16 {
	return (instr >> lo) & ((1 << (hi - lo + 1)) - 1)
}

// decodeThumb classifies a THUMB opcode by its top 8 bits into one of the
// 19 instruction formats from §4.8.
func decodeThumb(instr uint16) thumbHandler {
	top3 := field16(instr, 15, 13)

	switch top3 {
	case 0b000:
		if field16(instr, 12, 11) == 0b11 {
			return execThumbAddSub
		}
		return execThumbMoveShifted
	case 0b001:
		return execThumbImmediate
	case 0b010:
		switch field16(instr, 12, 10) {
		case 0b000:
			return execThumbALU
		case 0b001:
			return execThumbHiRegBX
		default:
			// decodeThumbPrecise refines this bucket further: PC-relative
			// load (01001) and sign-extended load/store (0101, bit9 set)
			// both live here too, keyed on bits outside this switch's view.
			return execThumbLoadStoreRegOffset
		}
	case 0b011:
		return execThumbLoadStoreImmOffset
	case 0b100:
		if bit16(instr, 12) {
			return execThumbSPRelative
		}
		return execThumbLoadStoreHalfword
	case 0b101:
		if bit16(instr, 12) {
			// 1011 0000 xxxxxxx (top byte exactly 0xB0) is Format 13,
			// ADD/SUB SP,#imm; the rest of 1011 1xx0/1 is push/pop.
			if field16(instr, 11, 8) == 0 {
				return execThumbAddOffsetSP
			}
			return execThumbPushPop
		}
		return execThumbGetAddress
	case 0b110:
		if bit16(instr, 12) {
			if field16(instr, 11, 8) == 0xF {
				return execThumbSWI
			}
			return execThumbCondBranch
		}
		return execThumbMultipleLoadStore
	default: // 0b111
		switch field16(instr, 12, 11) {
		case 0b00:
			return execThumbUncondBranch
		case 0b10, 0b11:
			return execThumbLongBranchLink
		default:
			return execThumbUndefined
		}
	}
}

func execThumbUndefined(c *CPU, instr uint16) { c.raiseUndefined() }

// re-decode the specific sub-format within the broad buckets above, since a
// single top-8-bit key sometimes straddles two formats (PC-relative load and
// register-offset load/store share bucket 010xx).
func decodeThumbPrecise(instr uint16) thumbHandler {
	if field16(instr, 15, 11) == 0b01001 {
		return execThumbPCRelativeLoad
	}
	if field16(instr, 15, 12) == 0b0101 {
		if bit16(instr, 9) {
			return execThumbLoadStoreSignExtended
		}
		return execThumbLoadStoreRegOffset
	}
	return nil
}

func init() {
	for key := 0; key < 256; key++ {
		synth := uint16(key) << 8
		if h := decodeThumbPrecise(synth); h != nil {
			thumbDispatch[key] = h
		}
	}
}

// --- Format 1: move shifted register ---

func execThumbMoveShifted(c *CPU, instr uint16) {
	op := field16(instr, 12, 11)
	amount := uint32(field16(instr, 10, 6))
	rs := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	val := c.Regs.R(rs)
	result, carry := barrelShift(ShiftType(op), val, amount, c.Regs.Flag(flagCarry), true)
	c.Regs.SetR(rd, result)
	c.setLogicalFlags(result, carry)
}

// --- Format 2: add/subtract ---

func execThumbAddSub(c *CPU, instr uint16) {
	immediate := bit16(instr, 10)
	sub := bit16(instr, 9)
	rnOrImm := uint32(field16(instr, 8, 6))
	rs := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	op1 := c.Regs.R(rs)
	var op2 uint32
	if immediate {
		op2 = rnOrImm
	} else {
		op2 = c.Regs.R(int(rnOrImm))
	}

	var result uint32
	var carry, overflow bool
	if sub {
		result, carry, overflow = subWithFlags(op1, op2)
	} else {
		result, carry, overflow = addWithFlags(op1, op2)
	}
	c.Regs.SetR(rd, result)
	c.setArithFlags(result, carry, overflow)
}

// --- Format 3: move/compare/add/subtract immediate ---

func execThumbImmediate(c *CPU, instr uint16) {
	op := field16(instr, 12, 11)
	rd := int(field16(instr, 10, 8))
	imm := uint32(field16(instr, 7, 0))

	op1 := c.Regs.R(rd)
	switch op {
	case 0b00: // MOV
		c.Regs.SetR(rd, imm)
		c.setLogicalFlags(imm, c.Regs.Flag(flagCarry))
	case 0b01: // CMP
		result, carry, overflow := subWithFlags(op1, imm)
		c.setArithFlags(result, carry, overflow)
	case 0b10: // ADD
		result, carry, overflow := addWithFlags(op1, imm)
		c.Regs.SetR(rd, result)
		c.setArithFlags(result, carry, overflow)
	case 0b11: // SUB
		result, carry, overflow := subWithFlags(op1, imm)
		c.Regs.SetR(rd, result)
		c.setArithFlags(result, carry, overflow)
	}
}

// --- Format 4: ALU operations ---

func execThumbALU(c *CPU, instr uint16) {
	op := field16(instr, 9, 6)
	rs := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	op1 := c.Regs.R(rd)
	op2 := c.Regs.R(rs)
	var result uint32
	writesResult := true
	carry := c.Regs.Flag(flagCarry)
	var overflow bool
	haveArith := false

	switch op {
	case 0x0: // AND
		result = op1 & op2
	case 0x1: // EOR
		result = op1 ^ op2
	case 0x2: // LSL
		result, carry = barrelShift(LSL, op1, op2&0xFF, carry, false)
	case 0x3: // LSR
		result, carry = barrelShift(LSR, op1, op2&0xFF, carry, false)
	case 0x4: // ASR
		result, carry = barrelShift(ASR, op1, op2&0xFF, carry, false)
	case 0x5: // ADC
		result, carry, overflow = addWithFlags(op1, op2+boolToBit(c.Regs.Flag(flagCarry)))
		haveArith = true
	case 0x6: // SBC
		result, carry, overflow = subWithFlags(op1, op2+1-boolToBit(c.Regs.Flag(flagCarry)))
		haveArith = true
	case 0x7: // ROR
		result, carry = barrelShift(ROR, op1, op2&0xFF, carry, false)
	case 0x8: // TST
		result = op1 & op2
		writesResult = false
	case 0x9: // NEG
		result, carry, overflow = subWithFlags(0, op2)
		haveArith = true
	case 0xA: // CMP
		result, carry, overflow = subWithFlags(op1, op2)
		haveArith = true
		writesResult = false
	case 0xB: // CMN
		result, carry, overflow = addWithFlags(op1, op2)
		haveArith = true
		writesResult = false
	case 0xC: // ORR
		result = op1 | op2
	case 0xD: // MUL
		result = op1 * op2
		c.sched.Idle(mulIdleCycles(op2))
	case 0xE: // BIC
		result = op1 &^ op2
	case 0xF: // MVN
		result = ^op2
	}

	if writesResult {
		c.Regs.SetR(rd, result)
	}
	c.Regs.SetFlag(flagZero, result == 0)
	c.Regs.SetFlag(flagNegative, result&(1<<31) != 0)
	c.Regs.SetFlag(flagCarry, carry)
	if haveArith {
		c.Regs.SetFlag(flagOverflow, overflow)
	}
}

func (c *CPU) setLogicalFlags(result uint32, carry bool) {
	c.Regs.SetFlag(flagZero, result == 0)
	c.Regs.SetFlag(flagNegative, result&(1<<31) != 0)
	c.Regs.SetFlag(flagCarry, carry)
}

func (c *CPU) setArithFlags(result uint32, carry, overflow bool) {
	c.Regs.SetFlag(flagZero, result == 0)
	c.Regs.SetFlag(flagNegative, result&(1<<31) != 0)
	c.Regs.SetFlag(flagCarry, carry)
	c.Regs.SetFlag(flagOverflow, overflow)
}

// --- Format 5: hi-register operations and BX ---

func execThumbHiRegBX(c *CPU, instr uint16) {
	op := field16(instr, 9, 8)
	h1 := bit16(instr, 7)
	h2 := bit16(instr, 6)
	rs := int(field16(instr, 5, 3))
	if h2 {
		rs += 8
	}
	rd := int(field16(instr, 2, 0))
	if h1 {
		rd += 8
	}

	switch op {
	case 0b00: // ADD
		c.Regs.SetR(rd, c.Regs.R(rd)+c.Regs.R(rs))
		if rd == 15 {
			c.branchTo(c.Regs.R(15) &^ 1)
		}
	case 0b01: // CMP
		result, carry, overflow := subWithFlags(c.Regs.R(rd), c.Regs.R(rs))
		c.setArithFlags(result, carry, overflow)
	case 0b10: // MOV
		c.Regs.SetR(rd, c.Regs.R(rs))
		if rd == 15 {
			c.branchTo(c.Regs.R(15) &^ 1)
		}
	case 0b11: // BX
		target := c.Regs.R(rs)
		c.Regs.SetFlag(flagThumb, target&1 != 0)
		c.branchTo(target)
	}
}

// --- Format 6: PC-relative load ---

func execThumbPCRelativeLoad(c *CPU, instr uint16) {
	rd := int(field16(instr, 10, 8))
	imm := uint32(field16(instr, 7, 0)) * 4
	base := (c.Regs.PC() &^ 3) + imm
	c.Regs.SetR(rd, c.bus.Read32Rotated(base, NonSeq))
}

// --- Format 7: load/store with register offset ---

func execThumbLoadStoreRegOffset(c *CPU, instr uint16) {
	l := bit16(instr, 11)
	b := bit16(instr, 10)
	ro := int(field16(instr, 8, 6))
	rb := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	addr := c.Regs.R(rb) + c.Regs.R(ro)
	if l {
		if b {
			c.Regs.SetR(rd, uint32(c.bus.Read8(addr, NonSeq)))
		} else {
			c.Regs.SetR(rd, c.bus.Read32Rotated(addr, NonSeq))
		}
	} else {
		if b {
			c.bus.Write8(addr, uint8(c.Regs.R(rd)), NonSeq)
		} else {
			c.bus.Write32(addr, c.Regs.R(rd), NonSeq)
		}
	}
}

// --- Format 8: load/store sign-extended byte/halfword ---

func execThumbLoadStoreSignExtended(c *CPU, instr uint16) {
	hFlag := bit16(instr, 11)
	signFlag := bit16(instr, 10)
	ro := int(field16(instr, 8, 6))
	rb := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	addr := c.Regs.R(rb) + c.Regs.R(ro)
	switch {
	case !signFlag && !hFlag: // STRH
		c.bus.Write16(addr, uint16(c.Regs.R(rd)), NonSeq)
	case !signFlag && hFlag: // LDRH
		c.Regs.SetR(rd, uint32(c.bus.Read16Rotated(addr, NonSeq)))
	case signFlag && !hFlag: // LDSB
		c.Regs.SetR(rd, uint32(c.bus.Read8Signed(addr, NonSeq)))
	default: // LDSH
		c.Regs.SetR(rd, uint32(c.bus.Read16Signed(addr, NonSeq)))
	}
}

// --- Format 9: load/store with immediate offset ---

func execThumbLoadStoreImmOffset(c *CPU, instr uint16) {
	b := bit16(instr, 12)
	l := bit16(instr, 11)
	imm := uint32(field16(instr, 10, 6))
	rb := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	var addr uint32
	if b {
		addr = c.Regs.R(rb) + imm
	} else {
		addr = c.Regs.R(rb) + imm*4
	}

	if l {
		if b {
			c.Regs.SetR(rd, uint32(c.bus.Read8(addr, NonSeq)))
		} else {
			c.Regs.SetR(rd, c.bus.Read32Rotated(addr, NonSeq))
		}
	} else {
		if b {
			c.bus.Write8(addr, uint8(c.Regs.R(rd)), NonSeq)
		} else {
			c.bus.Write32(addr, c.Regs.R(rd), NonSeq)
		}
	}
}

// --- Format 10: load/store halfword ---

func execThumbLoadStoreHalfword(c *CPU, instr uint16) {
	l := bit16(instr, 11)
	imm := uint32(field16(instr, 10, 6)) * 2
	rb := int(field16(instr, 5, 3))
	rd := int(field16(instr, 2, 0))

	addr := c.Regs.R(rb) + imm
	if l {
		c.Regs.SetR(rd, uint32(c.bus.Read16Rotated(addr, NonSeq)))
	} else {
		c.bus.Write16(addr, uint16(c.Regs.R(rd)), NonSeq)
	}
}

// --- Format 11: SP-relative load/store ---

func execThumbSPRelative(c *CPU, instr uint16) {
	l := bit16(instr, 11)
	rd := int(field16(instr, 10, 8))
	imm := uint32(field16(instr, 7, 0)) * 4

	addr := c.Regs.R(13) + imm
	if l {
		c.Regs.SetR(rd, c.bus.Read32Rotated(addr, NonSeq))
	} else {
		c.bus.Write32(addr, c.Regs.R(rd), NonSeq)
	}
}

// --- Format 12: get relative address (ADR) ---

func execThumbGetAddress(c *CPU, instr uint16) {
	sp := bit16(instr, 11)
	rd := int(field16(instr, 10, 8))
	imm := uint32(field16(instr, 7, 0)) * 4

	var base uint32
	if sp {
		base = c.Regs.R(13)
	} else {
		base = c.Regs.PC() &^ 3
	}
	c.Regs.SetR(rd, base+imm)
}

// --- Format 13: add offset to SP ---

func execThumbAddOffsetSP(c *CPU, instr uint16) {
	neg := bit16(instr, 7)
	imm := uint32(field16(instr, 6, 0)) * 4
	if neg {
		c.Regs.SetR(13, c.Regs.R(13)-imm)
	} else {
		c.Regs.SetR(13, c.Regs.R(13)+imm)
	}
}

// --- Format 14: push/pop registers ---

func execThumbPushPop(c *CPU, instr uint16) {
	l := bit16(instr, 11)
	includeSpecial := bit16(instr, 8)
	list := field16(instr, 7, 0)

	if l {
		sp := c.Regs.R(13)
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				c.Regs.SetR(i, c.bus.Read32Rotated(sp, NonSeq))
				sp += 4
			}
		}
		if includeSpecial {
			c.branchTo(c.bus.Read32Rotated(sp, NonSeq) &^ 1)
			sp += 4
		}
		c.Regs.SetR(13, sp)
	} else {
		count := 0
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				count++
			}
		}
		if includeSpecial {
			count++
		}
		sp := c.Regs.R(13) - uint32(count)*4
		c.Regs.SetR(13, sp)
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				c.bus.Write32(sp, c.Regs.R(i), NonSeq)
				sp += 4
			}
		}
		if includeSpecial {
			c.bus.Write32(sp, c.Regs.R(14), NonSeq)
		}
	}
}

// --- Format 15: multiple load/store (LDMIA/STMIA) ---

func execThumbMultipleLoadStore(c *CPU, instr uint16) {
	l := bit16(instr, 11)
	rb := int(field16(instr, 10, 8))
	list := field16(instr, 7, 0)

	addr := c.Regs.R(rb)
	if list == 0 {
		// Empty-list quirk mirrors the ARM form: PC-sized transfer, base+=0x40.
		if l {
			target := c.bus.Read32Rotated(addr, NonSeq) &^ 1
			c.Regs.SetR(rb, addr+0x40)
			c.branchTo(target)
			return
		}
		c.bus.Write32(addr, c.Regs.PC()+2, NonSeq)
		c.Regs.SetR(rb, addr+0x40)
		return
	}

	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		if l {
			c.Regs.SetR(i, c.bus.Read32Rotated(addr, NonSeq))
		} else {
			c.bus.Write32(addr, c.Regs.R(i), NonSeq)
		}
		addr += 4
	}
	c.Regs.SetR(rb, addr)
}

// --- Format 16: conditional branch ---

func execThumbCondBranch(c *CPU, instr uint16) {
	cond := uint32(field16(instr, 11, 8))
	if cond == 0xE {
		// 0xF is routed to execThumbSWI by decodeThumb; 0xE has no defined
		// meaning in Format 16 and is reserved/undefined-instruction space.
		c.fatal(uint32(instr), "reserved THUMB conditional branch condition")
	}
	offset := int32(bits.SignExtend(uint32(field16(instr, 7, 0)), 8)) * 2
	if checkCondition(c.Regs, cond) {
		c.branchTo(uint32(int32(c.Regs.PC()) + offset))
	}
}

// --- Format 17: software interrupt ---

func execThumbSWI(c *CPU, instr uint16) { c.raiseSWI() }

// --- Format 18: unconditional branch ---

func execThumbUncondBranch(c *CPU, instr uint16) {
	offset := int32(bits.SignExtend(uint32(field16(instr, 10, 0)), 11)) * 2
	c.branchTo(uint32(int32(c.Regs.PC()) + offset))
}

// --- Format 19: long branch with link (two-opcode pair) ---

func execThumbLongBranchLink(c *CPU, instr uint16) {
	low := bit16(instr, 11)
	offset := uint32(field16(instr, 10, 0))

	if !low {
		// First opcode: LR = PC + (offset<<12), sign-extended.
		signExtended := int32(bits.SignExtend(offset, 11)) << 12
		c.Regs.SetR(14, uint32(int32(c.Regs.PC())+signExtended))
		return
	}
	// Second opcode: PC = LR + (offset<<1); LR = (old PC-2) | 1.
	nextInstr := c.Regs.PC() - 2
	target := c.Regs.R(14) + offset<<1
	c.Regs.SetR(14, nextInstr|1)
	c.branchTo(target)
}
