// Package dma implements the four GBA DMA channels: source/dest addressing
// modes, repeat, FIFO-to-sound special mode, and the four start-timing
// triggers that preempt CPU execution. The teacher's bus had a single,
// hard-wired OAM-DMA copy loop driven directly from Bus.Tick; the GBA needs
// four independently configurable channels arbitrated by priority and timed
// through the scheduler, so this is a new component rather than a
// generalisation of that loop.
package dma

import (
	"github.com/gba-emu/goadvance/internal/interrupt"
	"github.com/gba-emu/goadvance/internal/scheduler"
)

// StartTiming selects when an enabled channel activates.
type StartTiming uint8

const (
	Immediate StartTiming = iota
	VBlank
	HBlank
	Special
)

// AddrAdjust selects the step applied to an address after each unit
// transferred.
type AddrAdjust uint8

const (
	Increment AddrAdjust = iota
	Decrement
	Fixed
	IncrementReload // dest only
)

const transferDelay = 2 // cycles between the enable edge and activation

// countMask, srcMask and dstMask per channel, per §4.3.
var countMask = [4]uint32{0x3FFF, 0x3FFF, 0x3FFF, 0xFFFF}
var srcMask = [4]uint32{1<<27 - 1, 1<<28 - 1, 1<<28 - 1, 1<<28 - 1}
var dstMask = [4]uint32{1<<27 - 1, 1<<27 - 1, 1<<27 - 1, 1<<28 - 1}

// Bus is the subset of the memory bus a channel needs to perform a
// transfer. Implemented by internal/bus.Bus.
type Bus interface {
	DMARead16(addr uint32, seq bool) uint16
	DMARead32(addr uint32, seq bool) uint32
	DMAWrite16(addr uint32, v uint16, seq bool)
	DMAWrite32(addr uint32, v uint32, seq bool)
}

// Channel is one of the four DMA channels' programmable and internal
// state.
type Channel struct {
	index int

	// Programmed registers (as last written by the CPU).
	srcAddr, dstAddr uint32
	count            uint32
	srcAdjust        AddrAdjust
	dstAdjust        AddrAdjust
	repeat           bool
	wordSize         bool // true = 32-bit, false = 16-bit
	startTiming      StartTiming
	irqOnDone        bool
	enabled          bool
	gamePakDRQ       bool // ch3 only, not modelled further (no GamePak DRQ source)

	// Internal latched copies used during an in-flight transfer.
	curSrc, curDst uint32
	curCount       uint32

	pending bool
	fifo    bool
	event   *scheduler.Event
}

// Controller owns all four DMA channels and arbitrates transfers between
// CPU steps.
type Controller struct {
	ch        [4]Channel
	sched     *scheduler.Scheduler
	intr      *interrupt.Controller
	bus       Bus
	fifoAAddr uint32
	fifoBAddr uint32
}

func New(sched *scheduler.Scheduler, intr *interrupt.Controller, fifoAAddr, fifoBAddr uint32) *Controller {
	c := &Controller{sched: sched, intr: intr, fifoAAddr: fifoAAddr, fifoBAddr: fifoBAddr}
	for i := range c.ch {
		c.ch[i].index = i
	}
	return c
}

// AttachBus supplies the bus used to perform transfers. Split from New to
// break the bus<->dma construction cycle: bus.New takes the Controller and
// calls AttachBus with itself, and the Controller needs the bus to move
// bytes.
func (c *Controller) AttachBus(bus Bus) { c.bus = bus }

// AnyPending reports whether perform_transfers has work to do; the main
// loop checks this ahead of every CPU step.
func (c *Controller) AnyPending() bool {
	for i := range c.ch {
		if c.ch[i].pending {
			return true
		}
	}
	return false
}

// --- register access, used by the IO dispatch layer ---

func (c *Controller) SetSAD(ch int, value uint32) {
	c.ch[ch].srcAddr = value & srcMask[ch]
}
func (c *Controller) SetDAD(ch int, value uint32) {
	c.ch[ch].dstAddr = value & dstMask[ch]
}
func (c *Controller) SetCountL(ch int, value uint16) {
	c.ch[ch].count = uint32(value) & countMask[ch]
}

func (c *Controller) SAD(ch int) uint32     { return c.ch[ch].srcAddr }
func (c *Controller) DAD(ch int) uint32     { return c.ch[ch].dstAddr }
func (c *Controller) CountL(ch int) uint16  { return uint16(c.ch[ch].count) }

// SetControl decodes the 16-bit DMAxCNT_H register and handles the
// enable-bit rising/falling edge per §4.3.
func (c *Controller) SetControl(chIdx int, value uint16) {
	ch := &c.ch[chIdx]
	wasEnabled := ch.enabled

	ch.dstAdjust = AddrAdjust((value >> 5) & 3)
	ch.srcAdjust = AddrAdjust((value >> 7) & 3)
	ch.repeat = value&(1<<9) != 0
	ch.wordSize = value&(1<<10) != 0
	ch.gamePakDRQ = value&(1<<11) != 0
	ch.startTiming = StartTiming((value >> 12) & 3)
	ch.irqOnDone = value&(1<<14) != 0
	ch.enabled = value&(1<<15) != 0

	if ch.enabled && !wasEnabled {
		c.onEnable(ch)
	} else if !ch.enabled && wasEnabled {
		c.onDisable(ch)
	}
}

// Control reconstructs the DMAxCNT_H register value for reads.
func (c *Controller) Control(chIdx int) uint16 {
	ch := &c.ch[chIdx]
	var v uint16
	v |= uint16(ch.dstAdjust) << 5
	v |= uint16(ch.srcAdjust) << 7
	if ch.repeat {
		v |= 1 << 9
	}
	if ch.wordSize {
		v |= 1 << 10
	}
	if ch.gamePakDRQ {
		v |= 1 << 11
	}
	v |= uint16(ch.startTiming) << 12
	if ch.irqOnDone {
		v |= 1 << 14
	}
	if ch.enabled {
		v |= 1 << 15
	}
	return v
}

func (c *Controller) onEnable(ch *Channel) {
	ch.curSrc = ch.srcAddr
	ch.curDst = ch.dstAddr
	ch.curCount = ch.count
	if ch.curCount == 0 {
		ch.curCount = countMask[ch.index] + 1
	}

	ch.fifo = (ch.index == 1 || ch.index == 2) && ch.startTiming == Special &&
		(ch.dstAddr == c.fifoAAddr || ch.dstAddr == c.fifoBAddr)

	idx := ch.index
	trigger := scheduler.Immediate
	switch ch.startTiming {
	case VBlank:
		trigger = scheduler.VBlank
	case HBlank:
		trigger = scheduler.HBlank
	case Special:
		if ch.fifo {
			trigger = scheduler.Immediate // activated on demand by the APU's FIFO request, modelled as immediate here
		} else {
			trigger = scheduler.Immediate
		}
	}
	ch.event = c.sched.Schedule(transferDelay, trigger, func() { c.activate(idx) })
}

func (c *Controller) onDisable(ch *Channel) {
	if ch.event != nil {
		ch.event.Cancel()
		ch.event = nil
	}
	ch.pending = false
}

func (c *Controller) activate(idx int) {
	c.ch[idx].pending = true
}

// PerformTransfers drains every pending channel in priority order (0..3),
// called by the main loop ahead of any CPU step when AnyPending is true.
func (c *Controller) PerformTransfers() {
	for i := range c.ch {
		if c.ch[i].pending {
			c.transfer(&c.ch[i])
		}
	}
}

func (c *Controller) transfer(ch *Channel) {
	ch.pending = false

	size := uint32(2)
	if ch.wordSize || ch.fifo {
		size = 4
	}
	ch.curSrc &^= size - 1
	ch.curDst &^= size - 1

	srcStep := stepFor(ch.srcAdjust, size)
	var dstStep int32
	if ch.fifo {
		dstStep = 0
	} else {
		dstStep = stepFor(ch.dstAdjust, size)
	}

	seq := false
	for i := uint32(0); i < ch.curCount; i++ {
		if size == 4 {
			v := c.bus.DMARead32(ch.curSrc, seq)
			c.bus.DMAWrite32(ch.curDst, v, seq)
		} else {
			v := c.bus.DMARead16(ch.curSrc, seq)
			c.bus.DMAWrite16(ch.curDst, v, seq)
		}
		seq = true
		ch.curSrc = uint32(int64(ch.curSrc) + int64(srcStep))
		ch.curDst = uint32(int64(ch.curDst) + int64(dstStep))
	}

	if ch.irqOnDone {
		c.intr.Signal(interrupt.DMA0 + ch.index)
	}

	if ch.repeat && (ch.startTiming == VBlank || ch.startTiming == HBlank || ch.startTiming == Special) {
		if ch.dstAdjust == IncrementReload {
			ch.curDst = ch.dstAddr
		}
		ch.curCount = ch.count
		if ch.curCount == 0 {
			ch.curCount = countMask[ch.index] + 1
		}
		idx := ch.index
		trigger := scheduler.Immediate
		switch ch.startTiming {
		case VBlank:
			trigger = scheduler.VBlank
		case HBlank:
			trigger = scheduler.HBlank
		}
		ch.event = c.sched.Schedule(transferDelay, trigger, func() { c.activate(idx) })
	} else {
		ch.enabled = false
	}
}

func stepFor(adj AddrAdjust, size uint32) int32 {
	switch adj {
	case Increment, IncrementReload:
		return int32(size)
	case Decrement:
		return -int32(size)
	default:
		return 0
	}
}
