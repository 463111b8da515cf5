// Package icy demultiplexes Shoutcast/Icecast metadata blocks that servers
// interleave into the audio byte stream at a fixed interval.
package icy

import (
	"strings"
)

// MetadataDelegate receives decoded metadata dictionaries as they appear in
// the stream.
type MetadataDelegate interface {
	MetadataReceived(metadata map[string]string)
}

type processorPhase int

const (
	phaseAudio processorPhase = iota
	phaseLength
	phaseMetadata
)

// Processor is a stateful byte scanner that splits an ICY-interleaved stream
// into audio-only bytes and metadata dictionaries. It performs no I/O and can
// be fed chunks of any size; partial metadata blocks are buffered across
// chunk boundaries.
type Processor struct {
	step      int
	phase     processorPhase
	audioRead int
	metaLeft  int
	metaBuf   []byte
	audioOut  []byte
	delegate  MetadataDelegate
}

// NewProcessor creates a processor with no delegate; metadata blocks are
// still stripped but silently discarded until SetDelegate is called.
func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) SetDelegate(d MetadataDelegate) {
	p.delegate = d
}

// MetadataAvailable arms the processor with the number of audio bytes between
// metadata blocks. A step of 0 disables metadata processing entirely.
func (p *Processor) MetadataAvailable(step int) {
	if step < 0 {
		step = 0
	}
	p.step = step
	p.phase = phaseAudio
	p.audioRead = 0
	p.metaLeft = 0
	p.metaBuf = p.metaBuf[:0]
}

// CanProcessMetadata reports whether a metadata step has been armed.
func (p *Processor) CanProcessMetadata() bool {
	return p.step > 0
}

// ProcessMetadata consumes an arbitrary-sized chunk of interleaved bytes and
// returns only the audio payload. The returned slice is valid until the next
// call.
func (p *Processor) ProcessMetadata(data []byte) []byte {
	if p.step <= 0 {
		return data
	}

	p.audioOut = p.audioOut[:0]

	for len(data) > 0 {
		switch p.phase {
		case phaseAudio:
			n := p.step - p.audioRead
			if n > len(data) {
				n = len(data)
			}
			p.audioOut = append(p.audioOut, data[:n]...)
			p.audioRead += n
			data = data[n:]
			if p.audioRead == p.step {
				p.phase = phaseLength
			}

		case phaseLength:
			length := int(data[0]) * 16
			data = data[1:]
			p.audioRead = 0
			if length == 0 {
				p.phase = phaseAudio
			} else {
				p.metaLeft = length
				p.metaBuf = p.metaBuf[:0]
				p.phase = phaseMetadata
			}

		case phaseMetadata:
			n := p.metaLeft
			if n > len(data) {
				n = len(data)
			}
			p.metaBuf = append(p.metaBuf, data[:n]...)
			p.metaLeft -= n
			data = data[n:]
			if p.metaLeft == 0 {
				p.deliverMetadata()
				p.phase = phaseAudio
			}
		}
	}

	return p.audioOut
}

func (p *Processor) deliverMetadata() {
	meta := ParseMetadata(string(p.metaBuf))
	p.metaBuf = p.metaBuf[:0]
	if len(meta) > 0 && p.delegate != nil {
		p.delegate.MetadataReceived(meta)
	}
}

// ParseMetadata decodes an ICY metadata block of the form
// StreamTitle='...';StreamUrl='...'; into key/value pairs. Trailing NUL
// padding is ignored.
func ParseMetadata(block string) map[string]string {
	block = strings.TrimRight(block, "\x00")
	if block == "" {
		return nil
	}

	meta := make(map[string]string)
	for _, part := range strings.Split(block, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			continue
		}
		key := part[:eq]
		value := part[eq+1:]
		value = strings.TrimPrefix(value, "'")
		value = strings.TrimSuffix(value, "'")
		meta[key] = value
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}
