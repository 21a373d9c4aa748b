// Package logx provides a small structured logging facade over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, whose zero value is a safe no-op, and the
// app can re-apply sink/level config at runtime without handing out new
// logger instances.
package logx
