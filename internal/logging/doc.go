// Package logging configures structured slog output for mixsearch. Logs are
// JSON lines written to stderr, to a size-rotated file, or both. The MCP
// server mode writes to the file only so stdout stays reserved for JSON-RPC.
package logging
