// Package server hosts the satellite-facing WebSocket endpoint, the room
// connection table used for response dispatch, and the monitoring HTTP API.
package server
