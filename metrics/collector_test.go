package metrics

import "testing"

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.IncCommandSent("EraseFlash")
	c.IncTransmission(true, 5)
	c.AddBytesRead(3)
	c.IncResponse()
	c.IncNoResponse()
	c.IncRejected()
	c.IncProgramRound(11)
	c.IncStaleFrame()
	c.AbsorbDecoderStats(DecoderStats{Frames: 1})

	s := c.Snapshot()
	if s.CommandsSent != 0 || s.SentByCommand == nil {
		t.Errorf("nil Snapshot() = %+v", s)
	}
}

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector("/dev/ttyUSB0", "abc")
	c.IncCommandSent("ProgramFlash")
	c.IncCommandSent("ProgramFlash")
	c.IncCommandSent("ReadCrc")
	c.IncTransmission(false, 10)
	c.IncTransmission(true, 10)
	c.IncTransmission(false, 7)
	c.AddBytesRead(5)
	c.AddBytesRead(-1)
	c.IncProgramRound(11)
	c.IncProgramRound(3)
	c.AbsorbDecoderStats(DecoderStats{Frames: 4, CRCErrors: 2, Overflows: 1})
	c.AbsorbDecoderStats(DecoderStats{Frames: 5, CRCErrors: 2, Overflows: 1})

	s := c.Snapshot()

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"commands", s.CommandsSent, 3},
		{"program commands", s.SentByCommand["ProgramFlash"], 2},
		{"transmissions", s.Transmissions, 3},
		{"retransmits", s.Retransmits, 1},
		{"bytes written", s.BytesWritten, 27},
		{"bytes read", s.BytesRead, 5},
		{"rounds", s.ProgramRounds, 2},
		{"records", s.RecordsStreamed, 14},
		{"frames", s.FramesValid, 5},
		{"dropped", s.FramesDropped, 2},
		{"overflows", s.Overflows, 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}

	s.SentByCommand["ReadCrc"] = 100
	if c.Snapshot().SentByCommand["ReadCrc"] != 1 {
		t.Error("snapshot map aliases collector state")
	}
	if s.Port != "/dev/ttyUSB0" || s.Session != "abc" {
		t.Errorf("dimensions = %q, %q", s.Port, s.Session)
	}
}
