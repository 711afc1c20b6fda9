package reader

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// lookAheadPollInterval is the teacher-grounded 250ms poll slice for
// lookahead waits (§4.5, §5 suspension points); pacing sleeps are bounded
// by maxPacingSleepSlice instead.
const lookAheadPollInterval = 250 * time.Millisecond

// maxPacingSleepSlice bounds a single pacing sleep so the heartbeat
// callback still fires at least once a second even when a reservation
// needs to wait longer (§4.5 Pacing: "sleeps in ≤1s slices").
const maxPacingSleepSlice = time.Second

// pacerBurstSeconds is how many seconds of media time the pacer lets a
// client get ahead of real time before throttling kicks in, absorbing
// ordinary scheduling jitter without delaying every single packet.
const pacerBurstSeconds = 5

// Pacer throttles packet emission to a configured realTime ratio (ms of
// media time allowed per real second; 0 disables pacing) using
// golang.org/x/time/rate as the token bucket: each packet's time delta
// since the previous one is reserved as tokens, refilled at realTime
// tokens/sec, so Reserve's delay is exactly how long the caller must still
// wait for real time to catch up to the media clock.
type Pacer struct {
	realTime int
	limiter  *rate.Limiter
}

// NewPacer creates a Pacer. A realTime of 0 disables pacing entirely.
func NewPacer(realTime int) *Pacer {
	if realTime <= 0 {
		return &Pacer{realTime: 0}
	}
	return &Pacer{
		realTime: realTime,
		limiter:  rate.NewLimiter(rate.Limit(realTime), realTime*pacerBurstSeconds),
	}
}

// WaitForTime blocks in ≤1s slices until real time has caught up enough to
// emit a packet deltaMediaMS after the previously emitted one, calling
// heartbeat after every slice so the caller can refresh its slot heartbeat
// during a long wait. ctx cancellation aborts the wait early.
func (p *Pacer) WaitForTime(ctx context.Context, deltaMediaMS int64, heartbeat func()) error {
	if p.realTime <= 0 || deltaMediaMS <= 0 {
		return nil
	}
	n := int(deltaMediaMS)
	if burst := p.limiter.Burst(); n > burst {
		n = burst
	}

	delay := p.limiter.ReserveN(time.Now(), n).Delay()
	for delay > 0 {
		sleep := delay
		if sleep > maxPacingSleepSlice {
			sleep = maxPacingSleepSlice
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay -= sleep
		if heartbeat != nil {
			heartbeat()
		}
	}
	return nil
}

// LookAhead blocks emission of a packet at packetMS until every selected
// track has data for packetMS+needsLookAheadMS, polling at
// lookAheadPollInterval. It gives up after 30s (§4.5: "timeout resets
// lookAhead to 0"), returning the new needsLookAheadMS
// value the caller should use from then on (0 on timeout, unchanged
// otherwise).
func LookAhead(ctx context.Context, needsLookAheadMS int64, ready func() bool, refresh func()) int64 {
	if needsLookAheadMS <= 0 {
		return needsLookAheadMS
	}
	sleepMS := lookAheadPollInterval.Milliseconds()
	if needsLookAheadMS < sleepMS {
		sleepMS = needsLookAheadMS
	}
	timeoutTries := 30000 / sleepMS

	for tries := timeoutTries; tries > 0; tries-- {
		if ready() {
			return needsLookAheadMS
		}
		select {
		case <-ctx.Done():
			return needsLookAheadMS
		case <-time.After(time.Duration(sleepMS) * time.Millisecond):
		}
		if refresh != nil {
			refresh()
		}
	}
	return 0
}
