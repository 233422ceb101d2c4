package bootloader

import "github.com/tocurd/go-pic32-isp/protocol"

// Notifier receives session events. Calls are made synchronously from the
// Tick that produced the event and must return quickly.
type Notifier interface {
	// OnResponse delivers the body (tag stripped) of the response that
	// completed cmd. For ProgramFlash it fires once, when the whole image
	// has been acknowledged.
	OnResponse(cmd protocol.Command, payload []byte)

	// OnNoResponse reports that cmd ran out of retries.
	OnNoResponse(cmd protocol.Command)

	// OnProgress reports (current, total) whenever it changes.
	OnProgress(current, total int)

	// OnError reports a failure that ended or disturbed cmd without a
	// transport error: an oversized frame or an image error mid-transfer.
	OnError(cmd protocol.Command, err error)
}

// NotifierFuncs adapts plain functions to a Notifier. Nil fields are
// skipped.
type NotifierFuncs struct {
	Response   func(cmd protocol.Command, payload []byte)
	NoResponse func(cmd protocol.Command)
	Progress   func(current, total int)
	Error      func(cmd protocol.Command, err error)
}

func (f NotifierFuncs) OnResponse(cmd protocol.Command, payload []byte) {
	if f.Response != nil {
		f.Response(cmd, payload)
	}
}

func (f NotifierFuncs) OnNoResponse(cmd protocol.Command) {
	if f.NoResponse != nil {
		f.NoResponse(cmd)
	}
}

func (f NotifierFuncs) OnProgress(current, total int) {
	if f.Progress != nil {
		f.Progress(current, total)
	}
}

func (f NotifierFuncs) OnError(cmd protocol.Command, err error) {
	if f.Error != nil {
		f.Error(cmd, err)
	}
}
