package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldCount is the number of fields in a frame: voc,temperature,humidity.
const FieldCount = 3

// ErrMalformedFrame marks a notification payload that is not a valid frame.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameError describes why a payload was rejected.
type FrameError struct {
	Payload string
	Field   string // empty when the field count is wrong
	Err     error
}

func (e *FrameError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed frame %q: %v", e.Payload, e.Err)
	}
	return fmt.Sprintf("malformed frame %q: field %s: %v", e.Payload, e.Field, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func (e *FrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

var errNotFinite = errors.New("not a finite number")

var fieldNames = [FieldCount]string{"voc", "temperature", "humidity"}

// DecodeFrame parses one notification payload. Fields past the third are
// ignored. Whitespace and control bytes (NUL padding included) around the
// payload and around each field are trimmed.
func DecodeFrame(payload []byte) (Reading, error) {
	text := string(bytes.TrimFunc(payload, isPadding))
	parts := strings.Split(text, ",")
	if text == "" || len(parts) < FieldCount {
		return Reading{}, &FrameError{
			Payload: text,
			Err:     fmt.Errorf("expected %d fields, got %d", FieldCount, countFields(text, parts)),
		}
	}

	var values [FieldCount]float64
	for i := 0; i < FieldCount; i++ {
		v, err := strconv.ParseFloat(strings.TrimFunc(parts[i], isPadding), 64)
		if err != nil {
			return Reading{}, &FrameError{Payload: text, Field: fieldNames[i], Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, &FrameError{Payload: text, Field: fieldNames[i], Err: errNotFinite}
		}
		values[i] = v
	}

	return Reading{VOC: values[0], Temperature: values[1], Humidity: values[2]}, nil
}

// isPadding matches every byte up to and including space.
func isPadding(r rune) bool {
	return r <= ' '
}

func countFields(text string, parts []string) int {
	if text == "" {
		return 0
	}
	return len(parts)
}

// EncodeFrame renders a reading in wire format. Used by tests and tooling that
// replays captured frames.
func EncodeFrame(r Reading) []byte {
	return []byte(strconv.FormatFloat(r.VOC, 'f', -1, 64) + "," +
		strconv.FormatFloat(r.Temperature, 'f', -1, 64) + "," +
		strconv.FormatFloat(r.Humidity, 'f', -1, 64))
}
