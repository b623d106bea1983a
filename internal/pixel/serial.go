package pixel

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the Adalight bridge's default line speed.
const DefaultBaudRate = 115200

// SerialStrip streams frames to a microcontroller running an Adalight sketch,
// which drives the NeoPixels.
type SerialStrip struct {
	*Buffer
	w   io.Writer
	out []byte
}

// NewSerialStrip creates a strip of n pixels that writes frames to w.
func NewSerialStrip(w io.Writer, n int) *SerialStrip {
	return &SerialStrip{
		Buffer: NewBuffer(n),
		w:      w,
		out:    make([]byte, 0, 6+3*n),
	}
}

// OpenSerialStrip opens the serial port at path and returns a strip of n pixels on it.
func OpenSerialStrip(path string, baud, n int) (*SerialStrip, io.Closer, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewSerialStrip(port, n), port, nil
}

// Flush writes the current frame.
func (s *SerialStrip) Flush() error {
	s.out = EncodeAdalight(s.out[:0], s.Frame())
	if _, err := s.w.Write(s.out); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// EncodeAdalight appends an Adalight frame for pixels to dst.
// Header is "Ada", count-1 as big-endian uint16, and a checksum of hi^lo^0x55.
func EncodeAdalight(dst []byte, pixels []Color) []byte {
	n := len(pixels) - 1
	if n < 0 {
		n = 0
	}
	hi, lo := byte(n>>8), byte(n)
	dst = append(dst, 'A', 'd', 'a', hi, lo, hi^lo^0x55)
	for _, c := range pixels {
		dst = append(dst, c.R, c.G, c.B)
	}
	return dst
}
