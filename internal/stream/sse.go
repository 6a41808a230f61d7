package stream

import (
	"bufio"
	"bytes"
	"io"
)

// maxFrameSize bounds a single SSE line. Route geometries are long.
const maxFrameSize = 8 << 20

// event is one dispatched Server-Sent Event. Oversized is set when one of
// its lines exceeded the line limit; Data is empty then.
type event struct {
	ID        string
	Name      string
	Data      []byte
	Oversized bool
}

// readEvents parses a text/event-stream body and calls fn for each complete
// event. It returns the error that ended the stream, io.EOF on a clean close.
func readEvents(r io.Reader, fn func(event)) error {
	return readEventsLimit(r, maxFrameSize, fn)
}

func readEventsLimit(r io.Reader, limit int, fn func(event)) error {
	sp := &lineSplitter{max: limit}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64<<10, limit)), limit)
	sc.Split(sp.split)

	var (
		cur       event
		data      bytes.Buffer
		hasData   bool
		oversized bool
	)

	for sc.Scan() {
		if sp.dropped {
			sp.dropped = false
			oversized = true
			continue
		}

		line := sc.Bytes()

		if len(line) == 0 {
			switch {
			case oversized:
				fn(event{ID: cur.ID, Name: cur.Name, Oversized: true})
			case hasData:
				cur.Data = bytes.Clone(data.Bytes())
				fn(cur)
			}
			cur = event{ID: cur.ID}
			data.Reset()
			hasData = false
			oversized = false
			continue
		}

		// comment / keep-alive
		if line[0] == ':' {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = line[i+1:]
			if len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
		}

		switch string(field) {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "event":
			cur.Name = string(value)
		case "id":
			cur.ID = string(value)
		}
	}

	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// lineSplitter splits on CRLF, LF or a bare CR. A line longer than max is
// consumed without being buffered whole; its end yields an empty token with
// dropped set.
type lineSplitter struct {
	max      int
	afterCR  bool
	skipping bool
	dropped  bool
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.afterCR && len(data) > 0 {
		s.afterCR = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		s.afterCR = data[i] == '\r'
		if s.skipping {
			s.skipping = false
			s.dropped = true
			return i + 1, []byte{}, nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		if len(data) == 0 {
			return 0, nil, nil
		}
		if s.skipping {
			s.skipping = false
			s.dropped = true
			return len(data), []byte{}, nil
		}
		return len(data), data, nil
	}

	if s.skipping || len(data) >= s.max {
		s.skipping = true
		return len(data), nil, nil
	}

	return 0, nil, nil
}
