package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, body string) ([]event, error) {
	t.Helper()
	var events []event
	err := readEvents(strings.NewReader(body), func(ev event) { events = append(events, ev) })
	return events, err
}

func TestReadEventsDataFrames(t *testing.T) {
	events, err := collect(t, "data: [1]\n\ndata: [2]\n\n")
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 2)
	assert.Equal(t, "[1]", string(events[0].Data))
	assert.Equal(t, "[2]", string(events[1].Data))
}

func TestReadEventsMultilineAndFields(t *testing.T) {
	body := ": keep-alive\r\n" +
		"id: 7\r\n" +
		"event: update\r\n" +
		"retry: 1000\r\n" +
		"data: [\r\n" +
		"data:1]\r\n" +
		"\r\n"

	events, err := collect(t, body)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].ID)
	assert.Equal(t, "update", events[0].Name)
	assert.Equal(t, "[\n1]", string(events[0].Data))
}

func TestReadEventsSkipsEmptyAndIncomplete(t *testing.T) {
	// blank lines with no data dispatch nothing; a trailing frame without
	// its terminating blank line is never dispatched
	events, err := collect(t, "\n\nevent: ping\n\ndata: [3]")
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, events)
}

func TestReadEventsResetsNameBetweenEvents(t *testing.T) {
	events, err := collect(t, "event: done\ndata: end\n\ndata: [4]\n\n")
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 2)
	assert.Equal(t, "done", events[0].Name)
	assert.Equal(t, "", events[1].Name)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadEventsPropagatesReadError(t *testing.T) {
	err := readEvents(failingReader{}, func(event) {})
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestReadEventsBareCarriageReturn(t *testing.T) {
	events, err := collect(t, "data: []\r\rdata: [5]\r\n\r\ndata: [6]\n\n")
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 3)
	assert.Equal(t, "[]", string(events[0].Data))
	assert.Equal(t, "[5]", string(events[1].Data))
	assert.Equal(t, "[6]", string(events[2].Data))
}

func TestReadEventsDropsOversizedLineAndKeepsReading(t *testing.T) {
	body := "data: [1]\n\n" +
		"data: " + strings.Repeat("x", 100) + "\n" +
		"data: tail\n\n" +
		"data: []\n\n"

	var events []event
	err := readEventsLimit(strings.NewReader(body), 32, func(ev event) { events = append(events, ev) })
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 3)

	assert.Equal(t, "[1]", string(events[0].Data))
	assert.True(t, events[1].Oversized)
	assert.Empty(t, events[1].Data)
	assert.False(t, events[2].Oversized)
	assert.Equal(t, "[]", string(events[2].Data))
}

func TestReadEventsOversizedAtEOF(t *testing.T) {
	var events []event
	err := readEventsLimit(strings.NewReader("data: "+strings.Repeat("y", 64)), 16, func(ev event) {
		events = append(events, ev)
	})
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, events)
}
