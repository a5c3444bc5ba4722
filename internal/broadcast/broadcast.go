// Package broadcast periodically indicates a little-endian u16 counter to
// every subscribed peer.
package broadcast

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/chaz8081/navelo-gatts/internal/gatts"
	"github.com/sirupsen/logrus"
)

// Indicator is the session side of a broadcast. *gatts.Server satisfies it.
type Indicator interface {
	Indicate(ctx context.Context, data []byte) error
}

// Driver indicates an incrementing counter on a fixed interval.
type Driver struct {
	ind      Indicator
	interval time.Duration
	log      logrus.FieldLogger

	counter uint16
}

// New creates a Driver. The counter starts at zero.
func New(ind Indicator, interval time.Duration, log logrus.FieldLogger) *Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{ind: ind, interval: interval, log: log}
}

// Counter returns the value the next tick will send.
func (d *Driver) Counter() uint16 { return d.counter }

// Tick indicates the current counter once and advances it on success.
func (d *Driver) Tick(ctx context.Context) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], d.counter)
	if err := d.ind.Indicate(ctx, buf[:]); err != nil {
		return err
	}
	d.log.WithField("value", d.counter).Info("[BCAST] broadcasted indication")
	d.counter++
	return nil
}

// Run ticks immediately and then every interval until ctx is done or the
// session is closed. Failed ticks are logged and retried with the same value
// on the next interval.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, gatts.ErrServerClosed) {
				return err
			}
			d.log.WithError(err).WithField("value", d.counter).Warn("[BCAST] indication failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
