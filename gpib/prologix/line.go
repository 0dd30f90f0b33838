package prologix

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	esc = 0x1b
	cr  = '\r'
	lf  = '\n'
)

// escape prefixes the bytes the controller would interpret with ESC.
func escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, c := range data {
		switch c {
		case cr, lf, esc, '+':
			out = append(out, esc)
		}
		out = append(out, c)
	}

	return out
}

// The methods below must be called with b.line held.

// command sends one controller command, e.g. "++clr".
func (b *Bus) command(cmd string) error {
	if _, err := b.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("prologix: %s: %w", cmd, err)
	}
	b.logger.Debug("prologix: command", "cmd", cmd)

	return nil
}

// address makes pad/sad the current device of the controller.
func (b *Bus) address(pad, sad int) error {
	if b.addressed == (address{pad: pad, sad: sad}) {
		return nil
	}

	cmd := "++addr " + strconv.Itoa(pad)
	if sad != 0 {
		cmd += " " + strconv.Itoa(sad)
	}
	if err := b.command(cmd); err != nil {
		b.addressed = address{pad: -1}
		return err
	}
	b.addressed = address{pad: pad, sad: sad}

	return nil
}

// setEOI switches EOI assertion on the last written byte.
func (b *Bus) setEOI(assert bool) error {
	if b.eoi == assert {
		return nil
	}

	cmd := "++eoi 0"
	if assert {
		cmd = "++eoi 1"
	}
	if err := b.command(cmd); err != nil {
		return err
	}
	b.eoi = assert

	return nil
}

// writeData sends escaped data in chunks, checking ctx between chunks.
func (b *Bus) writeData(ctx context.Context, data []byte) (int, error) {
	escaped := escape(data)
	for off := 0; off < len(escaped); off += writeChunk {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(off+writeChunk, len(escaped))
		if _, err := b.port.Write(escaped[off:end]); err != nil {
			return 0, fmt.Errorf("prologix: write data: %w", err)
		}
	}
	if _, err := b.port.Write([]byte{lf}); err != nil {
		return 0, fmt.Errorf("prologix: write data: %w", err)
	}

	return len(data), nil
}

type readEnd int

const (
	readData readEnd = iota
	readTimeout
	readCanceled
	readFailed
)

// readResponse fills buf with what the device sends. It returns once buf is full,
// the line stayed quiet for the idle gap after data, the deadline passed or ctx is
// done. A zero deadline waits without limit.
func (b *Bus) readResponse(ctx context.Context, buf []byte, deadline time.Time) (int, readEnd, error) {
	n := 0
	lastData := time.Now()
	for n < len(buf) {
		if ctx.Err() != nil {
			return n, readCanceled, ctx.Err()
		}

		m, err := b.port.Read(buf[n:])
		if err != nil {
			return n, readFailed, fmt.Errorf("prologix: read: %w", err)
		}
		now := time.Now()
		if m > 0 {
			n += m
			lastData = now
			continue
		}
		if n > 0 && now.Sub(lastData) >= b.cfg.idleGap {
			break
		}
		if !deadline.IsZero() && now.After(deadline) {
			return n, readTimeout, nil
		}
	}

	return n, readData, nil
}

// deadlineFor returns the deadline of an operation bounded by t.
func deadlineFor(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}

	return time.Now().Add(d)
}
