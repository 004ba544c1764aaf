// Package types defines the wire types shared between the HTTP API,
// the websocket stream, and the services that back them.
package types
