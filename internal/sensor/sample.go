package sensor

import (
	"fmt"
	"time"
)

// Sample is one timestamped reading from the plant sensor.
type Sample struct {
	Timestamp   int64   // milliseconds since the Unix epoch
	VOC         float64 // ppm
	Temperature float64 // °C
	Humidity    float64 // percent
}

// Reading is a decoded frame that has not yet been timestamped.
type Reading struct {
	VOC         float64
	Temperature float64
	Humidity    float64
}

// At stamps the reading.
func (r Reading) At(ts int64) Sample {
	return Sample{Timestamp: ts, VOC: r.VOC, Temperature: r.Temperature, Humidity: r.Humidity}
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func (s Sample) String() string {
	return fmt.Sprintf("voc=%g temp=%g humidity=%g @%d", s.VOC, s.Temperature, s.Humidity, s.Timestamp)
}

// Metric selects one channel of a sample for trend views.
type Metric int

const (
	VOC Metric = iota
	Temperature
	Humidity
)

// Metrics lists every metric in display order.
var Metrics = []Metric{VOC, Temperature, Humidity}

// Value extracts the metric from s.
func (m Metric) Value(s Sample) float64 {
	switch m {
	case Temperature:
		return s.Temperature
	case Humidity:
		return s.Humidity
	default:
		return s.VOC
	}
}

// Label is the trend legend.
func (m Metric) Label() string {
	switch m {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	default:
		return "VOC Index"
	}
}

// Unit is the display unit.
func (m Metric) Unit() string {
	switch m {
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	default:
		return "ppm"
	}
}

// Key is the stable lowercase identifier used in metric labels and topics.
func (m Metric) Key() string {
	switch m {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	default:
		return "voc"
	}
}

func (m Metric) String() string {
	return m.Key()
}

// Format renders a value for the "current value" readout: one decimal for
// temperature, truncated integer otherwise.
func (m Metric) Format(v float64) string {
	if m == Temperature {
		return fmt.Sprintf("%.1f %s", v, m.Unit())
	}
	return fmt.Sprintf("%d %s", int(v), m.Unit())
}

// ParseMetric accepts the Key spelling.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if m.Key() == s {
			return m, nil
		}
	}
	return VOC, fmt.Errorf("unknown metric %q (must be voc, temperature, or humidity)", s)
}
