// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// slogBridge is an slog.Handler writing through zerolog. The supervisor
// tree reports restarts and failures with it via sutureslog.
//
// Attributes given to WithAttrs are baked into the zerolog context at once;
// prefix holds the dotted group path for attributes added later.
type slogBridge struct {
	zl     zerolog.Logger
	prefix string
}

// NewSlogLogger returns an *slog.Logger that writes to the global logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogBridge{zl: Logger()})
}

// NewSlogHandlerWithLogger bridges slog onto zl.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(zl zerolog.Logger) slog.Handler {
	return &slogBridge{zl: zl}
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	zl := slogToZerologLevel(level)
	return zl >= zerolog.GlobalLevel() && zl >= b.zl.GetLevel()
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (b *slogBridge) Handle(_ context.Context, rec slog.Record) error {
	ev := b.zl.WithLevel(slogToZerologLevel(rec.Level))
	rec.Attrs(func(a slog.Attr) bool {
		writeAttr(ev, b.prefix, a)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return b
	}
	ctx := b.zl.With()
	for _, a := range attrs {
		ctx = ctx.Interface(b.prefix+a.Key, attrValue(a.Value))
	}
	return &slogBridge{zl: ctx.Logger(), prefix: b.prefix}
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	return &slogBridge{zl: b.zl, prefix: b.prefix + name + "."}
}

// writeAttr adds a to ev, flattening groups into dotted keys.
func writeAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(ev, sub, ga)
		}
		return
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		ev.Str(key, v.String())
	case slog.KindInt64:
		ev.Int64(key, v.Int64())
	case slog.KindBool:
		ev.Bool(key, v.Bool())
	case slog.KindDuration:
		ev.Dur(key, v.Duration())
	case slog.KindTime:
		ev.Time(key, v.Time())
	default:
		ev.Interface(key, attrValue(v))
	}
}

// attrValue unwraps a value for zerolog's Interface encoder. Errors would
// otherwise encode as {}.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	if v.Kind() == slog.KindGroup {
		var sb strings.Builder
		for i, ga := range v.Group() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(ga.String())
		}
		return sb.String()
	}
	return v.Any()
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
