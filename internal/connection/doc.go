// Package connection owns the lifecycle of the link to the plant sensor:
// scan, connect, negotiate the GATT profile, subscribe to notifications and
// stream until stopped or the link drops.
//
// The machine never retries on its own. A failed attempt rests in Failed and
// the caller decides whether to Start again.
package connection
