// Package sensor holds the plant sensor data model and the notification
// frame decoder.
package sensor
