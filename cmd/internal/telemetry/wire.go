package telemetry

import "strconv"

// Message tags understood by the dashboard renderer.
const (
	ConfigTag = "car_config"
	UpdateTag = "car_update"
)

const sep = '|'

// FormatConfig encodes the one-time config message:
//
//	car_config|rpm_red_line|rpm_maximum|speed_red_line|speed_maximum
func FormatConfig(c CarConfig) string {
	return string(AppendConfig(make([]byte, 0, 32), c))
}

// AppendConfig appends the config message to dst.
func AppendConfig(dst []byte, c CarConfig) []byte {
	dst = append(dst, ConfigTag...)
	dst = appendInt(dst, int64(c.RPMRedLine))
	dst = appendInt(dst, int64(c.RPMMaximum))
	dst = appendInt(dst, int64(c.SpeedRedLine))
	dst = appendInt(dst, int64(c.SpeedMaximum))
	return dst
}

// FormatUpdate encodes the periodic update message:
//
//	car_update|gear|gas|brake|clutch|rpm|speed_kmh|lap_time|last_lap|best_lap|lap_count
func FormatUpdate(c CarState) string {
	return string(AppendUpdate(make([]byte, 0, 96), c))
}

// AppendUpdate appends the update message to dst.
func AppendUpdate(dst []byte, c CarState) []byte {
	dst = append(dst, UpdateTag...)
	dst = appendInt(dst, int64(c.Gear))
	dst = appendFloat(dst, c.Gas)
	dst = appendFloat(dst, c.Brake)
	dst = appendFloat(dst, c.Clutch)
	dst = appendFloat(dst, c.RPM)
	dst = appendFloat(dst, c.SpeedKMH)
	dst = appendInt(dst, int64(c.LapTimeMS))
	dst = appendInt(dst, int64(c.LastLapMS))
	dst = appendInt(dst, int64(c.BestLapMS))
	dst = appendInt(dst, int64(c.LapCount))
	return dst
}

func appendInt(dst []byte, v int64) []byte {
	dst = append(dst, sep)
	return strconv.AppendInt(dst, v, 10)
}

// Shortest representation that round-trips as float32, always '.' as the
// decimal point.
func appendFloat(dst []byte, v float32) []byte {
	dst = append(dst, sep)
	return strconv.AppendFloat(dst, float64(v), 'f', -1, 32)
}
