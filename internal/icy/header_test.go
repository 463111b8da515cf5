package icy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderScanner_ICYInlineHeaders(t *testing.T) {
	stream := []byte("ICY 200 OK\r\nicy-name: Test Radio\r\nicy-metaint: 8192\r\n\r\nAUDIO")

	s := NewHeaderScanner()
	audio := s.Process(stream)

	require.True(t, s.Done())
	assert.Equal(t, []byte("AUDIO"), audio)
	assert.Equal(t, "Test Radio", s.Headers()["icy-name"])
	assert.Equal(t, "8192", s.Headers()["icy-metaint"])
}

func TestHeaderScanner_HTTPInlineHeaders(t *testing.T) {
	stream := []byte("HTTP/1.0 200 OK\nContent-Type: audio/mpeg\n\nPAYLOAD")

	s := NewHeaderScanner()
	audio := s.Process(stream)

	require.True(t, s.Done())
	assert.Equal(t, []byte("PAYLOAD"), audio)
	assert.Equal(t, "audio/mpeg", s.Headers()["content-type"])
}

func TestHeaderScanner_AbortsOnNonHeaderPrefix(t *testing.T) {
	// MP3 frame sync bytes; nothing resembling a header.
	stream := []byte{0xFF, 0xFB, 0x90, 0x64, 0x01, 0x02}

	s := NewHeaderScanner()
	audio := s.Process(stream)

	require.True(t, s.Done())
	assert.Equal(t, stream, audio)
	assert.Nil(t, s.Headers())
}

func TestHeaderScanner_ByteAtATime(t *testing.T) {
	stream := []byte("ICY 200 OK\r\nicy-br: 128\r\n\r\nXYZ")

	s := NewHeaderScanner()
	var audio []byte
	for _, b := range stream {
		audio = append(audio, s.Process([]byte{b})...)
	}

	require.True(t, s.Done())
	assert.Equal(t, []byte("XYZ"), audio)
	assert.Equal(t, "128", s.Headers()["icy-br"])
}

func TestHeaderScanner_ShortPrefixHeldBack(t *testing.T) {
	s := NewHeaderScanner()

	// Fewer than 4 bytes cannot be classified yet.
	assert.Nil(t, s.Process([]byte("IC")))
	assert.False(t, s.Done())

	// Completing a non-header prefix releases everything as audio.
	audio := s.Process([]byte("Q!"))
	require.True(t, s.Done())
	assert.Equal(t, []byte("ICQ!"), audio)
}

func TestHeaderScanner_PassthroughAfterDone(t *testing.T) {
	s := NewHeaderScanner()
	s.Process([]byte("ICY 200 OK\n\nfirst"))
	require.True(t, s.Done())

	next := []byte("second")
	assert.Equal(t, next, s.Process(next))
}
