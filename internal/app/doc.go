// Package app wires storage, embeddings, indexing and the retrieval pipeline
// from a config.Config and serves them to the MCP server, the HTTP API and
// the CLI.
package app
