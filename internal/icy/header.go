package icy

import (
	"bytes"
	"strings"
)

type headerPhase int

const (
	headerDetecting headerPhase = iota
	headerAccumulating
	headerDone
	headerAborted
)

// HeaderScanner detects and consumes a legacy response header block that some
// Shoutcast servers place inline at the start of the stream body ("ICY 200
// OK\r\n..." or a full HTTP status block) instead of speaking real HTTP.
//
// Feed bytes through Process until Done reports true; bytes that turn out not
// to be header bytes are returned as audio. If the leading bytes are neither
// an "ICY " nor an "HTTP" prefix, detection aborts immediately and the whole
// payload passes through untouched.
type HeaderScanner struct {
	phase   headerPhase
	prefix  []byte
	buf     []byte
	headers map[string]string
}

func NewHeaderScanner() *HeaderScanner {
	return &HeaderScanner{}
}

// Done reports whether header detection has concluded, either way.
func (s *HeaderScanner) Done() bool {
	return s.phase == headerDone || s.phase == headerAborted
}

// Headers returns the parsed inline header fields, lowercase-keyed, or nil if
// no inline header block was found.
func (s *HeaderScanner) Headers() map[string]string {
	return s.headers
}

// Process consumes stream bytes and returns the subset that is audio payload.
func (s *HeaderScanner) Process(data []byte) []byte {
	switch s.phase {
	case headerDone, headerAborted:
		return data

	case headerDetecting:
		s.prefix = append(s.prefix, data...)
		if len(s.prefix) < 4 {
			return nil
		}
		lead := s.prefix[:4]
		if !bytes.Equal(lead, []byte("ICY ")) && !bytes.Equal(lead, []byte("HTTP")) {
			s.phase = headerAborted
			audio := s.prefix
			s.prefix = nil
			return audio
		}
		s.phase = headerAccumulating
		s.buf = s.prefix
		s.prefix = nil
		return s.scanTerminator()

	case headerAccumulating:
		s.buf = append(s.buf, data...)
		return s.scanTerminator()
	}
	return nil
}

func (s *HeaderScanner) scanTerminator() []byte {
	end := -1
	skip := 0
	if i := bytes.Index(s.buf, []byte("\r\n\r\n")); i >= 0 {
		end, skip = i, 4
	} else if i := bytes.Index(s.buf, []byte("\n\n")); i >= 0 {
		end, skip = i, 2
	}
	if end < 0 {
		return nil
	}

	s.headers = parseInlineHeaders(string(s.buf[:end]))
	audio := s.buf[end+skip:]
	s.buf = nil
	s.phase = headerDone
	return audio
}

func parseInlineHeaders(block string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		headers[key] = strings.TrimSpace(line[colon+1:])
	}
	return headers
}
