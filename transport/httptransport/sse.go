package httptransport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// writeSSEEvent writes one `data:`-framed SSE event. MCP never needs
// multi-line data (every frame is compact JSON with no embedded
// newlines per the codec's contract), so one data line per event
// suffices; id is optional and only meaningful for resume, which this
// module does not implement (spec §9 leaves SSE resume an open
// question).
func writeSSEEvent(w io.Writer, id string, data []byte) error {
	var buf bytes.Buffer
	if id != "" {
		fmt.Fprintf(&buf, "id: %s\n", id)
	}
	buf.WriteString("event: message\n")
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// sseReader pulls `data:` lines out of a server-sent-events body. It
// ignores event/id/comment lines, which this module's server never
// emits meaningfully beyond "message" anyway.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &sseReader{scanner: s}
}

// Next returns the next event's data payload, or io.EOF once the stream
// ends.
func (r *sseReader) Next() ([]byte, error) {
	var data []byte
	sawData := false
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		switch {
		case len(line) == 0:
			if sawData {
				return data, nil
			}
			continue
		case bytes.HasPrefix(line, []byte("data:")):
			payload := bytes.TrimPrefix(line, []byte("data:"))
			payload = bytes.TrimPrefix(payload, []byte(" "))
			data = append(append([]byte{}, data...), payload...)
			sawData = true
		default:
			// event:, id:, retry:, or a comment line — not needed here.
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if sawData {
		return data, nil
	}
	return nil, io.EOF
}
