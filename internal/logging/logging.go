// Package logging wraps log/slog with one bounded history buffer shared
// by all levels, filtered by level on replay, so a client that issues
// CreateOutputMessage{level} can be replayed recent log lines on attach,
// then streamed new ones as they are emitted.
package logging

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
)

// Level mirrors the handful of severities a CreateOutputMessage
// subscription can request.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Entry is one buffered/streamed log line.
type Entry struct {
	Level   Level
	Message string
}

// Sink is a log destination: a connected client subscribed via
// CreateOutputMessage. Entries below the subscriber's requested level are
// not delivered.
type Sink interface {
	Accept(Entry)
}

// Logger is the daemon's shared logger: a slog.Logger plus a bounded
// ring of recent entries and a set of live Sinks.
type Logger struct {
	mu      sync.Mutex
	ring    *list.List
	ringCap int
	sinks   map[Sink]Level
	base    *slog.Logger
}

// New returns a Logger that keeps the last ringCap entries for replay.
func New(base *slog.Logger, ringCap int) *Logger {
	if ringCap <= 0 {
		ringCap = 1
	}
	if base == nil {
		base = slog.Default()
	}
	return &Logger{
		ring:    list.New(),
		ringCap: ringCap,
		sinks:   make(map[Sink]Level),
		base:    base,
	}
}

// Subscribe registers sink to receive entries at or above level, and
// immediately replays the buffered history at or above level.
func (l *Logger) Subscribe(sink Sink, level Level) {
	l.mu.Lock()
	l.sinks[sink] = level
	var history []Entry
	for e := l.ring.Front(); e != nil; e = e.Next() {
		entry := e.Value.(Entry)
		if entry.Level <= level {
			history = append(history, entry)
		}
	}
	l.mu.Unlock()

	for _, entry := range history {
		sink.Accept(entry)
	}
}

// Unsubscribe removes sink.
func (l *Logger) Unsubscribe(sink Sink) {
	l.mu.Lock()
	delete(l.sinks, sink)
	l.mu.Unlock()
}

func (l *Logger) emit(level Level, msg string, args ...any) {
	l.base.Log(context.Background(), level.slogLevel(), msg, args...)

	entry := Entry{Level: level, Message: msg}

	l.mu.Lock()
	l.ring.PushBack(entry)
	for l.ring.Len() > l.ringCap {
		l.ring.Remove(l.ring.Front())
	}
	var targets []Sink
	for sink, subLevel := range l.sinks {
		if level <= subLevel {
			targets = append(targets, sink)
		}
	}
	l.mu.Unlock()

	for _, sink := range targets {
		sink.Accept(entry)
	}
}

func (l *Logger) Errorf(msg string, args ...any) { l.emit(LevelError, sprintf(msg, args...)) }
func (l *Logger) Warnf(msg string, args ...any)  { l.emit(LevelWarn, sprintf(msg, args...)) }
func (l *Logger) Infof(msg string, args ...any)  { l.emit(LevelInfo, sprintf(msg, args...)) }
func (l *Logger) Debugf(msg string, args ...any) { l.emit(LevelDebug, sprintf(msg, args...)) }
