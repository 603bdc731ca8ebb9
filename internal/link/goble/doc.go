// Package goble implements link.Transport on top of github.com/go-ble/ble.
//
// The package owns the radio: one ble.Device per Transport, created lazily by
// DeviceFactory, and at most one live session at a time.
package goble
