package upload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mwantia/fluxupload/pkg/db/models"
	"github.com/mwantia/fluxupload/pkg/log"
)

type EventType string

const (
	EventChunkReceived   EventType = "chunk_received"
	EventUploadCompleted EventType = "upload_completed"
	EventUploadFailed    EventType = "upload_failed"
)

// Event carries a snapshot of the session and, for chunk_received, the stored chunk
type Event struct {
	Type    EventType
	Session models.UploadSession
	Chunk   *models.Chunk
	Error   string
	Time    time.Time
}

// EventSink receives lifecycle events synchronously
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ctx context.Context, event Event)

func (f EventSinkFunc) Publish(ctx context.Context, event Event) {
	f(ctx, event)
}

// Sinks fans an event out to every sink in order
type Sinks []EventSink

func (s Sinks) Publish(ctx context.Context, event Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}

// NopSink discards all events
func NopSink() EventSink { return nopSink{} }

// LogSink writes events to a logger
type LogSink struct {
	Log log.LoggerService
}

func (s LogSink) Publish(_ context.Context, event Event) {
	switch event.Type {
	case EventChunkReceived:
		if event.Chunk != nil {
			s.Log.Debug("Session '%s' received chunk %d (%d bytes)",
				event.Session.SessionID, event.Chunk.ChunkIndex, event.Chunk.ChunkSize)
		}
	case EventUploadCompleted:
		s.Log.Info("Session '%s' completed: '%s' stored at '%s'",
			event.Session.SessionID, event.Session.OriginalFilename, event.Session.StoragePath)
	case EventUploadFailed:
		s.Log.Warn("Session '%s' failed: %s", event.Session.SessionID, event.Error)
	}
}

// ChanSink forwards events to a buffered channel without blocking the caller.
// Events that do not fit are counted and dropped.
type ChanSink struct {
	events  chan Event
	dropped atomic.Int64
}

func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{events: make(chan Event, buffer)}
}

func (s *ChanSink) Publish(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChanSink) Events() <-chan Event {
	return s.events
}

func (s *ChanSink) Dropped() int64 {
	return s.dropped.Load()
}
