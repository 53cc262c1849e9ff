package spatial

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedPolyline is returned when an encoded polyline does not terminate cleanly
var ErrMalformedPolyline = errors.New("malformed polyline")

const polylinePrecision = 1e5

// Decode converts a Google encoded polyline into a path.
// Each value is a zig-zag signed delta packed into 5-bit groups offset by 63,
// with 0x20 as the continuation bit. Values run lat, lng, lat, lng...
func Decode(encoded string) ([]Point, error) {
	var path []Point
	var lat, lng int
	index := 0

	for index < len(encoded) {
		dLat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, fmt.Errorf("%w: latitude at offset %d has no longitude", ErrMalformedPolyline, index)
		}
		dLng, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lat += dLat
		lng += dLng

		path = append(path, Point{
			Lat: float64(lat) / polylinePrecision,
			Lng: float64(lng) / polylinePrecision,
		})
	}

	return path, nil
}

// decodeValue reads one signed value starting at index and returns it with the next index
func decodeValue(encoded string, index int) (int, int, error) {
	start := index
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, fmt.Errorf("%w: value at offset %d is truncated", ErrMalformedPolyline, start)
		}
		b := int(encoded[index]) - 63
		if b < 0 || b > 0x3f {
			return 0, index, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformedPolyline, encoded[index], index)
		}
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
		// more groups than an int can hold
		if shift > 60 {
			return 0, index, fmt.Errorf("%w: value at offset %d overflows", ErrMalformedPolyline, start)
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode converts a path into a Google encoded polyline
func Encode(path []Point) string {
	if len(path) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(path)*8)
	prevLat, prevLng := 0, 0

	for _, p := range path {
		lat := int(math.Round(p.Lat * polylinePrecision))
		lng := int(math.Round(p.Lng * polylinePrecision))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
