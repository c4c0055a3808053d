// Package logx configures remindd's structured logging.
//
// Components log through logx.Logger, a small wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A zero value that is safe to use (no-op)
package logx
