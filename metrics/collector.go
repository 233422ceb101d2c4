// Package metrics counts what a programming session did on the wire.
//
// The Collector accumulates counters for a single session. It is a leaf
// package with no internal dependencies. Decoder statistics are absorbed when
// a snapshot is taken rather than recorded live, avoiding double counting.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of the session counters.
type Snapshot struct {
	// Commands
	CommandsSent    int64
	Transmissions   int64
	Retransmits     int64
	Responses       int64
	NoResponses     int64
	Rejected        int64
	SentByCommand   map[string]int64
	ProgramRounds   int64
	RecordsStreamed int64

	// Receive path (absorbed from the frame decoder)
	FramesValid   int64
	FramesDropped int64
	Overflows     int64
	StaleFrames   int64

	BytesWritten int64
	BytesRead    int64

	// Dimensions
	Port    string
	Session string
	Started time.Time
}

// DecoderStats is the subset of decoder state absorbed into a snapshot.
type DecoderStats struct {
	Frames    uint64
	CRCErrors uint64
	Overflows uint64
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	commandsSent    int64
	transmissions   int64
	retransmits     int64
	responses       int64
	noResponses     int64
	rejected        int64
	sentByCommand   map[string]int64
	programRounds   int64
	recordsStreamed int64
	staleFrames     int64
	bytesWritten    int64
	bytesRead       int64

	decoder DecoderStats

	port    string
	session string
	started time.Time
}

// NewCollector creates a Collector labelled with the port and session id.
func NewCollector(port, session string) *Collector {
	return &Collector{
		sentByCommand: make(map[string]int64),
		port:          port,
		session:       session,
		started:       time.Now(),
	}
}

// IncCommandSent records a command handed to the retry scheduler.
func (c *Collector) IncCommandSent(command string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commandsSent++
	c.sentByCommand[command]++
	c.mu.Unlock()
}

// IncTransmission records one frame written to the channel. retry is true
// for every transmission after the first of a command.
func (c *Collector) IncTransmission(retry bool, n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transmissions++
	if retry {
		c.retransmits++
	}
	c.bytesWritten += int64(n)
	c.mu.Unlock()
}

// AddBytesRead records bytes read from the channel.
func (c *Collector) AddBytesRead(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.bytesRead += int64(n)
	c.mu.Unlock()
}

// IncResponse records a response delivered to the notifier.
func (c *Collector) IncResponse() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.responses++
	c.mu.Unlock()
}

// IncNoResponse records a command whose retries ran out.
func (c *Collector) IncNoResponse() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.noResponses++
	c.mu.Unlock()
}

// IncRejected records a command refused by the session.
func (c *Collector) IncRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

// IncProgramRound records one ProgramFlash batch carrying records.
func (c *Collector) IncProgramRound(records int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.programRounds++
	c.recordsStreamed += int64(records)
	c.mu.Unlock()
}

// IncStaleFrame records a valid frame that answered no outstanding command.
func (c *Collector) IncStaleFrame() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.staleFrames++
	c.mu.Unlock()
}

// AbsorbDecoderStats sets the receive path counters. Called with cumulative
// decoder counters; the last call wins.
func (c *Collector) AbsorbDecoderStats(s DecoderStats) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decoder = s
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{SentByCommand: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byCommand := make(map[string]int64, len(c.sentByCommand))
	for k, v := range c.sentByCommand {
		byCommand[k] = v
	}

	return Snapshot{
		CommandsSent:    c.commandsSent,
		Transmissions:   c.transmissions,
		Retransmits:     c.retransmits,
		Responses:       c.responses,
		NoResponses:     c.noResponses,
		Rejected:        c.rejected,
		SentByCommand:   byCommand,
		ProgramRounds:   c.programRounds,
		RecordsStreamed: c.recordsStreamed,
		FramesValid:     int64(c.decoder.Frames),
		FramesDropped:   int64(c.decoder.CRCErrors),
		Overflows:       int64(c.decoder.Overflows),
		StaleFrames:     c.staleFrames,
		BytesWritten:    c.bytesWritten,
		BytesRead:       c.bytesRead,
		Port:            c.port,
		Session:         c.session,
		Started:         c.started,
	}
}
