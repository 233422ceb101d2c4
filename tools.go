package isp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/bootloader"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// outcome is how the session ended the last command.
type outcome struct {
	cmd        protocol.Command
	body       []byte
	noResponse bool
}

func (t *ISP) notifier() bootloader.Notifier {
	return bootloader.NotifierFuncs{
		Response: func(cmd protocol.Command, payload []byte) {
			t.result = &outcome{cmd: cmd, body: payload}
		},
		NoResponse: func(cmd protocol.Command) {
			t.result = &outcome{cmd: cmd, noResponse: true}
		},
		Progress: func(current, total int) {
			if t.progress == nil || total <= 0 {
				return
			}
			t.percent = float64(current) / float64(total) * 100.0
			t.progress(t.percent)
		},
		Error: func(cmd protocol.Command, err error) {
			t.fault = err
		},
	}
}

// policy returns the retry budget of cmd. JmpToApp has a fixed policy in
// the session, so its values here are ignored.
func (t *ISP) policy(cmd protocol.Command) (int, time.Duration) {
	p, ok := t.opts.policies.For(cmd)
	if !ok {
		return bootloader.JumpRetries, bootloader.JumpDelay
	}
	return p.Retries, p.Delay.Duration
}

/*
 * @Description: send a command and tick the session until it ends
 * @receiver t
 * @param cmd
 * @return []byte response body, tag stripped
 * @return error *NoResponseError, an image error, a channel error or ctx.Err()
 */
func (t *ISP) command(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	retries, delay := t.policy(cmd)
	t.result, t.fault = nil, nil
	if err := t.session.Send(cmd, retries, delay); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(t.opts.tick)
	defer ticker.Stop()

	for {
		if err := t.session.Tick(); err != nil {
			t.session.Cancel()
			return nil, err
		}

		switch {
		case t.result != nil && t.result.noResponse:
			return nil, &NoResponseError{Command: cmd}
		case t.result != nil:
			return t.result.body, nil
		case !t.session.Busy():
			// Ended by OnError without a response.
			if t.fault == nil {
				t.fault = errors.Errorf("isp: %s abandoned", cmd)
			}
			return nil, t.fault
		case t.fault != nil:
			t.log.Warn("receive error", zap.Stringer("command", cmd), zap.Error(t.fault))
			t.fault = nil
		}

		select {
		case <-ctx.Done():
			t.session.Cancel()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
