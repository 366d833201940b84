package scan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrDecoderClosed = errors.New("line decoder input closed")

// LineDecoder is a Decoder for keyboard-wedge barcode readers and other
// sources that deliver one code per line. Lines read while the decoder is
// stopped are discarded, the way a camera ignores what it is not capturing.
type LineDecoder struct {
	mu   sync.Mutex
	emit func(string)
	eof  bool
}

// NewLineDecoder reads codes from r until it is exhausted. Reading starts
// right away, so writers to r never wait on the decoder being started.
func NewLineDecoder(r io.Reader) *LineDecoder {
	d := &LineDecoder{}
	go d.pump(r)
	return d
}

// Start implements Decoder. Only cfg.Mount is required; the rest is ignored.
func (d *LineDecoder) Start(ctx context.Context, _ Constraints, _ DecoderConfig, onDecoded func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.eof {
		d.mu.Unlock()
		return ErrDecoderClosed
	}
	d.emit = onDecoded
	d.mu.Unlock()
	return nil
}

// Stop implements Decoder. It never blocks on the underlying reader.
func (d *LineDecoder) Stop(context.Context) error {
	d.mu.Lock()
	d.emit = nil
	d.mu.Unlock()
	return nil
}

func (d *LineDecoder) pump(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d.mu.Lock()
		emit := d.emit
		d.mu.Unlock()
		if emit != nil {
			emit(line)
		}
	}
	d.mu.Lock()
	d.eof = true
	d.mu.Unlock()
}
