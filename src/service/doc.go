// Package service exposes a read-only HTTP API over a running node:
//
//	GET /stats      state, stop reason, iteration count and run time
//	GET /solution   the partition owned by the node and its full local view
//	GET /neighbors  the latest message received on each input tag
//	GET /metrics    prometheus metrics
package service
