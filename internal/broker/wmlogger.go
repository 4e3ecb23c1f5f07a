// Roxy Bar - Point of Sale Order Synchronization and Event Distribution
// Copyright 2026 Antonio R. (antonio12761)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/antonio12761/roxy-bar-sub008

package broker

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/antonio12761/roxy-bar-sub008/internal/logging"
)

// wmLogger adapts the global zerolog logger to watermill.LoggerAdapter so
// the in-process pub/sub logs through the same facade as everything else.
type wmLogger struct {
	fields watermill.LogFields
}

// NewWatermillLogger returns the watermill logging adapter.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &wmLogger{}
}

func (l *wmLogger) apply(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range l.fields {
		ev = ev.Str(k, fmt.Sprint(v))
	}
	for k, v := range fields {
		ev = ev.Str(k, fmt.Sprint(v))
	}
	return ev
}

func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.apply(logging.Error().Err(err), fields).Msg(msg)
}

func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	l.apply(logging.Info(), fields).Msg(msg)
}

func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.apply(logging.Debug(), fields).Msg(msg)
}

func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.apply(logging.Trace(), fields).Msg(msg)
}

func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &wmLogger{fields: merged}
}
