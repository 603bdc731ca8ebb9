// Package alert derives threshold alerts from sensor samples and keeps a
// bounded log of the alerts raised.
package alert

import (
	"fmt"

	"github.com/srg/plantmon/internal/sensor"
)

// Kind identifies the rule that raised an alert.
type Kind string

const (
	VocSpike    Kind = "VOC"
	Overheat    Kind = "TEMP"
	LowHumidity Kind = "HUMIDITY"
)

// Event is one raised alert. Timestamp is the timestamp of the sample that raised it.
type Event struct {
	Kind      Kind
	Message   string
	Timestamp int64
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Rules holds the thresholds. All comparisons are strict.
type Rules struct {
	VOCMax         float64 // VocSpike when voc > VOCMax
	TemperatureMax float64 // Overheat when temperature > TemperatureMax
	HumidityMin    float64 // LowHumidity when humidity < HumidityMin
}

// DefaultRules are the plant sensor thresholds.
var DefaultRules = Rules{
	VOCMax:         50,
	TemperatureMax: 35,
	HumidityMin:    40,
}

// Evaluate applies DefaultRules to one sample.
func Evaluate(s sensor.Sample) []Event {
	return DefaultRules.Evaluate(s)
}

// Evaluate returns the alerts raised by s, in VocSpike, Overheat, LowHumidity
// order. It has no memory: the same reading raises the same alerts every time.
func (r Rules) Evaluate(s sensor.Sample) []Event {
	var events []Event
	if s.VOC > r.VOCMax {
		events = append(events, Event{
			Kind:      VocSpike,
			Message:   fmt.Sprintf("VOC Spike – %d ppm", int(s.VOC)),
			Timestamp: s.Timestamp,
		})
	}
	if s.Temperature > r.TemperatureMax {
		events = append(events, Event{
			Kind:      Overheat,
			Message:   fmt.Sprintf("Overheating – %.1f°C", s.Temperature),
			Timestamp: s.Timestamp,
		})
	}
	if s.Humidity < r.HumidityMin {
		events = append(events, Event{
			Kind:      LowHumidity,
			Message:   fmt.Sprintf("Low Humidity – %d%%", int(s.Humidity)),
			Timestamp: s.Timestamp,
		})
	}
	return events
}
