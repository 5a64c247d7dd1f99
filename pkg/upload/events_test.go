package upload

import (
	"bytes"
	"context"
	"testing"

	config "github.com/mwantia/fluxupload/internal/config/server"
	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := NewChanSink(1)
	ctx := context.Background()

	sink.Publish(ctx, Event{Type: EventChunkReceived})
	sink.Publish(ctx, Event{Type: EventUploadCompleted})

	assert.Equal(t, int64(1), sink.Dropped())
	event := <-sink.Events()
	assert.Equal(t, EventChunkReceived, event.Type)
}

func TestSinksFanOut(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	var calls int
	sinks := Sinks{first, nil, second, EventSinkFunc(func(context.Context, Event) { calls++ })}

	sinks.Publish(context.Background(), Event{Type: EventUploadFailed})

	assert.Equal(t, []EventType{EventUploadFailed}, first.types())
	assert.Equal(t, []EventType{EventUploadFailed}, second.types())
	assert.Equal(t, 1, calls)
}

func TestLogSinkWritesLifecycle(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: log.NewLoggerServiceWithWriter("events", config.LogServerConfig{Level: "DEBUG"}, &buf)}
	ctx := context.Background()
	session := models.UploadSession{SessionID: "abc", OriginalFilename: "report.pdf", StoragePath: "uploads/report.pdf"}

	sink.Publish(ctx, Event{Type: EventChunkReceived, Session: session, Chunk: &models.Chunk{ChunkIndex: 2, ChunkSize: 10}})
	sink.Publish(ctx, Event{Type: EventUploadCompleted, Session: session})
	sink.Publish(ctx, Event{Type: EventUploadFailed, Session: session, Error: "boom"})

	out := buf.String()
	assert.Contains(t, out, "received chunk 2 (10 bytes)")
	assert.Contains(t, out, "stored at 'uploads/report.pdf'")
	assert.Contains(t, out, "failed: boom")
}
