// Package interrupt models the GBA interrupt controller: IE/IF/IME with the
// staged "pending" shadow copies the real hardware uses to account for bus
// write latency, plus the HALT/STOP power-down state. The teacher's PPU
// requested interrupts through a plain callback into the bus (see
// ppu.InterruptRequester); here the controller owns IE/IF/IME itself and the
// PPU/DMA/keypad components call Signal on it directly.
package interrupt

import "github.com/gba-emu/goadvance/internal/scheduler"

// Bit indices into IE/IF, per GBATEK.
const (
	VBlank = iota
	HBlank
	VCount
	Timer0
	Timer1
	Timer2
	Timer3
	Serial
	DMA0
	DMA1
	DMA2
	DMA3
	Keypad
	GamePak
)

const (
	writeDelay = 1 // cycles until a staged IE/IF/IME write commits
	lineDelay  = 2 // cycles until a changed IRQ line is observed
)

// PowerDown names the CPU power-down state selected via HALTCNT.
type PowerDown int

const (
	Running PowerDown = iota
	Halt
	Stop
)

// Controller owns IE, IF, IME and the derived CPU IRQ line.
type Controller struct {
	sched *scheduler.Scheduler

	ie, ief, ime             uint16
	pendingIE, pendingIF     uint16
	pendingIME               uint16

	irqLine   bool
	powerDown PowerDown

	commitEvent *scheduler.Event
	lineEvent   *scheduler.Event
}

func New(sched *scheduler.Scheduler) *Controller {
	return &Controller{sched: sched}
}

func (c *Controller) IE() uint16  { return c.ie }
func (c *Controller) IF() uint16  { return c.ief }
func (c *Controller) IME() uint16 { return c.ime }

// IRQLine reports the CPU-visible IRQ line level.
func (c *Controller) IRQLine() bool { return c.irqLine }

// PowerDownMode reports whether the CPU is halted, stopped, or running.
func (c *Controller) PowerDownMode() PowerDown { return c.powerDown }

// WriteIE stages a write to IE.
func (c *Controller) WriteIE(value uint16) {
	c.pendingIE = value
	c.scheduleCommit()
}

// WriteIF acknowledges interrupt bits: pending IF &= ^value.
func (c *Controller) WriteIF(value uint16) {
	c.pendingIF = c.pendingIF &^ value
	c.scheduleCommit()
}

// WriteIME stages a write to IME (only bit 0 is meaningful).
func (c *Controller) WriteIME(value uint16) {
	c.pendingIME = value & 1
	c.scheduleCommit()
}

// Signal ORs bit into the pending IF register, as raised by the PPU, DMA,
// timers, serial port or keypad.
func (c *Controller) Signal(bit int) {
	c.pendingIF |= 1 << uint(bit)
	c.scheduleCommit()
}

// WriteHaltCnt selects HALT or STOP power-down mode.
func (c *Controller) WriteHaltCnt(value uint8) {
	if value&0x80 != 0 {
		c.powerDown = Stop
	} else {
		c.powerDown = Halt
	}
}

// ClearPowerDown exits HALT/STOP immediately (used by callers resuming the
// CPU on an external wake condition, e.g. keypad in STOP).
func (c *Controller) ClearPowerDown() { c.powerDown = Running }

func (c *Controller) scheduleCommit() {
	if c.commitEvent != nil {
		return // a commit is already in flight; it will see the latest pending values
	}
	c.commitEvent = c.sched.Schedule(writeDelay, scheduler.Immediate, c.commit)
}

func (c *Controller) commit() {
	c.commitEvent = nil
	c.ie = c.pendingIE
	c.ief = c.pendingIF
	c.ime = c.pendingIME

	if c.ie&c.ief != 0 && c.powerDown == Halt {
		c.powerDown = Running
	}

	newLine := c.ie&c.ief != 0 && c.ime&1 != 0
	if newLine != c.irqLine {
		if c.lineEvent != nil {
			c.lineEvent.Cancel()
		}
		c.lineEvent = c.sched.Schedule(lineDelay, scheduler.Immediate, func() {
			c.lineEvent = nil
			c.irqLine = newLine
		})
	}
}
