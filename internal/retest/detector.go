package retest

import (
	"math"
	"time"

	"fib-retest-bot/internal/trade"
)

// Status is the window's position in its lifecycle. Confirmed and
// Expired are terminal.
type Status string

const (
	StatusArmed     Status = "ARMED"
	StatusRejected  Status = "REJECTED"
	StatusRetested  Status = "RETESTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusExpired
}

// Config sizes the price bands around a level target. Absolute values
// take precedence over basis points when both are set.
type Config struct {
	Tolerance       float64       `yaml:"tolerance"`
	ToleranceBps    float64       `yaml:"tolerance_bps"`
	Rejection       float64       `yaml:"rejection"`
	RejectionBps    float64       `yaml:"rejection_bps"`
	Confirmation    float64       `yaml:"confirmation"`
	ConfirmationBps float64       `yaml:"confirmation_bps"`
	Window          time.Duration `yaml:"window"`
}

const (
	defaultToleranceBps    = 5
	defaultRejectionBps    = 15
	defaultConfirmationBps = 10
	defaultWindow          = 15 * time.Minute
)

// ToleranceFor resolves the tolerance band half-width around a target
// price, applying the basis-point fallback when no absolute value is set.
func (c Config) ToleranceFor(target float64) float64 {
	return margin(c.Tolerance, c.ToleranceBps, defaultToleranceBps, target)
}

func margin(abs, bps, fallbackBps, target float64) float64 {
	if abs > 0 {
		return abs
	}
	if bps <= 0 {
		bps = fallbackBps
	}
	return math.Abs(target) * bps / 10000
}

// Detector watches samples around a single level target after a partial
// exit: a move away from the target by the rejection margin, a return
// into the tolerance band, then a resumption past the confirmation
// margin counts as a retest worth reentering on. One detector serves one
// window and is discarded afterwards.
type Detector struct {
	target       float64
	sign         float64
	band         float64
	rejection    float64
	confirmation float64
	deadline     time.Time
	status       Status
}

func New(target float64, dir trade.Direction, opened time.Time, cfg Config) *Detector {
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	return &Detector{
		target:       target,
		sign:         dir.Sign(),
		band:         margin(cfg.Tolerance, cfg.ToleranceBps, defaultToleranceBps, target),
		rejection:    margin(cfg.Rejection, cfg.RejectionBps, defaultRejectionBps, target),
		confirmation: margin(cfg.Confirmation, cfg.ConfirmationBps, defaultConfirmationBps, target),
		deadline:     opened.Add(window),
		status:       StatusArmed,
	}
}

func (d *Detector) Status() Status { return d.status }

func (d *Detector) Target() float64 { return d.target }

func (d *Detector) Deadline() time.Time { return d.deadline }

// Observe advances the window with one price sample and returns the
// resulting status. Confirmation is evaluated before expiry so a sample
// that satisfies both still triggers a reentry.
func (d *Detector) Observe(s trade.Sample) Status {
	if d.status.Terminal() {
		return d.status
	}
	next := d.status
	switch d.status {
	case StatusArmed:
		if d.adverse(s.Price) >= d.rejection {
			next = StatusRejected
		}
	case StatusRejected:
		if d.inBand(s.Price) {
			next = StatusRetested
		}
	case StatusRetested:
		if d.favorable(s.Price) >= d.confirmation {
			next = StatusConfirmed
		}
	}
	if next == StatusConfirmed {
		d.status = next
		return d.status
	}
	if s.Time.After(d.deadline) {
		d.status = StatusExpired
		return d.status
	}
	d.status = next
	return d.status
}

// adverse is the excursion away from the target against the trade
// direction: below target for long, above for short.
func (d *Detector) adverse(price float64) float64 {
	return (d.target - price) * d.sign
}

func (d *Detector) favorable(price float64) float64 {
	return (price - d.target) * d.sign
}

func (d *Detector) inBand(price float64) bool {
	return math.Abs(price-d.target) <= d.band
}
