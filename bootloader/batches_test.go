package bootloader

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/tocurd/go-pic32-isp/hexfile"
)

type sliceSource struct {
	records [][]byte
	pos     int
	failAt  int
	pulls   int
}

func (s *sliceSource) NextRecord() ([]byte, error) {
	s.pulls++
	if s.failAt > 0 && s.pos == s.failAt {
		return nil, hexfile.ErrMalformed
	}
	if s.pos >= len(s.records) {
		return nil, nil
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func records(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{0x04, byte(i >> 8), byte(i), 0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	}
	return out
}

func TestBatchesRoundCount(t *testing.T) {
	for _, n := range []int{1, 10, 11, 12, 21, 22, 23, 100} {
		src := &sliceSource{records: records(n)}
		b := newBatches(src)

		total, rounds := 0, 0
		for {
			recs, final, err := b.Next()
			if errors.Is(err, hexfile.ErrNoRecord) {
				break
			}
			if err != nil {
				t.Fatalf("n=%d: Next() error = %v", n, err)
			}
			if len(recs) == 0 || len(recs) > 11 {
				t.Fatalf("n=%d: round of %d records", n, len(recs))
			}
			if final && len(recs) == 11 && total+len(recs) != n {
				t.Fatalf("n=%d: full round marked final early", n)
			}
			rounds++
			total += len(recs)
		}

		if want := (n + 10) / 11; rounds != want {
			t.Errorf("n=%d: rounds = %d, want %d", n, rounds, want)
		}
		if total != n {
			t.Errorf("n=%d: records = %d", n, total)
		}
		if b.Rounds() != rounds || !b.Done() {
			t.Errorf("n=%d: Rounds() = %d, Done() = %v", n, b.Rounds(), b.Done())
		}

		// Drained: further calls never pull again.
		pulls := src.pulls
		if _, _, err := b.Next(); !errors.Is(err, hexfile.ErrNoRecord) {
			t.Errorf("n=%d: Next() after drain = %v", n, err)
		}
		if src.pulls != pulls {
			t.Errorf("n=%d: source pulled after drain", n)
		}
	}
}

func TestBatchesShortRoundIsFinal(t *testing.T) {
	b := newBatches(&sliceSource{records: records(14)})

	recs, final, err := b.Next()
	if err != nil || len(recs) != 11 || final {
		t.Fatalf("round 1 = %d records, final %v, err %v", len(recs), final, err)
	}
	recs, final, err = b.Next()
	if err != nil || len(recs) != 3 || !final {
		t.Fatalf("round 2 = %d records, final %v, err %v", len(recs), final, err)
	}
}

func TestBatchesEmpty(t *testing.T) {
	b := newBatches(&sliceSource{})
	if _, _, err := b.Next(); !errors.Is(err, hexfile.ErrNoRecord) {
		t.Errorf("Next() = %v, want ErrNoRecord", err)
	}
}

func TestBatchesSourceError(t *testing.T) {
	b := newBatches(&sliceSource{records: records(20), failAt: 13})
	if _, _, err := b.Next(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Next(); !errors.Is(err, hexfile.ErrMalformed) {
		t.Errorf("Next() = %v, want ErrMalformed", err)
	}
	if !b.Done() {
		t.Error("iterator not done after source error")
	}
}
