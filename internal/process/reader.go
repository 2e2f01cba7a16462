package process

import (
	"bufio"
	"io"
	"strings"

	"github.com/acarl005/stripansi"
)

// DefaultBufferSize is the maximum length of a single output line.
// Mod loaders can print very long classpath and stack-trace lines.
const DefaultBufferSize = 1024 * 1024

// LineReader splits a stream into cleaned [Line] values.
type LineReader struct {
	// BufferSize is the maximum size in bytes of a single line.
	// Defaults to [DefaultBufferSize] if <= 0.
	BufferSize int
}

// Read scans r line by line and sends each line to out until EOF or a read
// error. Trailing carriage returns and ANSI escape sequences are removed.
// Empty lines are skipped. Read returns the scanner error, if any; EOF and a
// closed pipe are normal termination.
func (lr LineReader) Read(r io.Reader, stream Stream, out chan<- Line) error {
	scanner := bufio.NewScanner(r)

	bufSize := lr.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	scanner.Buffer(make([]byte, 0, 64*1024), bufSize)

	for scanner.Scan() {
		text := CleanLine(scanner.Text())
		if text == "" {
			continue
		}
		out <- Line{Stream: stream, Text: text}
	}
	return scanner.Err()
}

// CleanLine strips ANSI escape sequences and a trailing carriage return.
func CleanLine(s string) string {
	return stripansi.Strip(strings.TrimRight(s, "\r"))
}
