package bootloader

import (
	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// RecordSource yields raw HEX records; an empty record means end of image.
// *hexfile.Image implements it.
type RecordSource interface {
	NextRecord() ([]byte, error)
}

// batches iterates the ProgramFlash rounds of one transfer. Each round holds
// up to protocol.RecordsPerBatch records pulled from the source cursor. A
// round that came up short is final; the transfer completes when a final
// round is acknowledged or a round finds no record at all.
type batches struct {
	src    RecordSource
	size   int
	done   bool
	rounds int
}

func newBatches(src RecordSource) *batches {
	return &batches{src: src, size: protocol.RecordsPerBatch}
}

// Next pulls the records of the next round. It returns hexfile.ErrNoRecord
// when the image holds nothing more to send.
func (b *batches) Next() (records [][]byte, final bool, err error) {
	if b.done {
		return nil, true, hexfile.ErrNoRecord
	}

	first, err := b.src.NextRecord()
	if err != nil {
		b.done = true
		return nil, true, err
	}
	if len(first) == 0 {
		b.done = true
		return nil, true, hexfile.ErrNoRecord
	}

	records = append(make([][]byte, 0, b.size), first)
	for len(records) < b.size {
		rec, err := b.src.NextRecord()
		if err != nil {
			b.done = true
			return nil, true, err
		}
		if len(rec) == 0 {
			b.done = true
			final = true
			break
		}
		records = append(records, rec)
	}
	b.rounds++
	return records, final, nil
}

// Done reports whether the image has been drained.
func (b *batches) Done() bool {
	return b.done
}

// Rounds returns how many rounds carried records.
func (b *batches) Rounds() int {
	return b.rounds
}
