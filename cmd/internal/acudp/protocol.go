// Package acudp speaks the simulator's UDP telemetry protocol: the setup
// handshake, event subscription and decoding of car update packets.
//
// All integers on the wire are little-endian. Strings are fixed 100 byte
// fields of UTF-16LE text terminated by '%' or NUL.
package acudp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"acdisplay/cmd/internal/telemetry"
)

// Operation is the operation id carried by a setup request.
type Operation int32

const (
	OpHandshake       Operation = 0
	OpSubscribeUpdate Operation = 1
	OpSubscribeSpot   Operation = 2
	OpDismiss         Operation = 3
)

func (o Operation) String() string {
	switch o {
	case OpHandshake:
		return "handshake"
	case OpSubscribeUpdate:
		return "subscribe_update"
	case OpSubscribeSpot:
		return "subscribe_spot"
	case OpDismiss:
		return "dismiss"
	default:
		return fmt.Sprintf("operation(%d)", int32(o))
	}
}

const (
	// deviceIdentifier is the device class we announce (1 = phone dashboard).
	deviceIdentifier int32 = 1
	protocolVersion  int32 = 1

	carUpdateIdentifier byte = 'a'
)

// Wire sizes.
const (
	RequestSize       = 12
	SetupResponseSize = 408
	CarUpdateSize     = 328

	nameBytes = 100
)

var (
	ErrShortPacket   = errors.New("acudp: short packet")
	ErrBadIdentifier = errors.New("acudp: unexpected packet identifier")
	ErrBadSize       = errors.New("acudp: packet size field mismatch")
)

var le = binary.LittleEndian

// Request is a setup request sent by the client.
type Request struct {
	Identifier  int32
	Version     int32
	OperationID Operation
}

// EncodeRequest returns the 12 byte request for op.
func EncodeRequest(op Operation) []byte {
	b := make([]byte, RequestSize)
	le.PutUint32(b[0:], uint32(deviceIdentifier))
	le.PutUint32(b[4:], uint32(protocolVersion))
	le.PutUint32(b[8:], uint32(op))
	return b
}

// DecodeRequest parses a setup request.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) < RequestSize {
		return Request{}, fmt.Errorf("%w: request is %d bytes, want %d", ErrShortPacket, len(b), RequestSize)
	}
	return Request{
		Identifier:  int32(le.Uint32(b[0:])),
		Version:     int32(le.Uint32(b[4:])),
		OperationID: Operation(int32(le.Uint32(b[8:]))),
	}, nil
}

// SetupResponse is the simulator's reply to a handshake.
type SetupResponse struct {
	CarName     string
	DriverName  string
	Identifier  int32
	Version     int32
	TrackName   string
	TrackConfig string
}

// Session converts the response into the snapshot's session info.
func (r SetupResponse) Session() telemetry.SessionInfo {
	return telemetry.SessionInfo{
		CarName:     r.CarName,
		DriverName:  r.DriverName,
		TrackName:   r.TrackName,
		TrackConfig: r.TrackConfig,
	}
}

type setupResponseWire struct {
	CarName     [nameBytes]byte
	DriverName  [nameBytes]byte
	Identifier  int32
	Version     int32
	TrackName   [nameBytes]byte
	TrackConfig [nameBytes]byte
}

// DecodeSetupResponse parses a 408 byte handshake response.
func DecodeSetupResponse(b []byte) (SetupResponse, error) {
	if len(b) < SetupResponseSize {
		return SetupResponse{}, fmt.Errorf("%w: setup response is %d bytes, want %d", ErrShortPacket, len(b), SetupResponseSize)
	}
	var w setupResponseWire
	if _, err := binary.Decode(b[:SetupResponseSize], le, &w); err != nil {
		return SetupResponse{}, fmt.Errorf("acudp: decode setup response: %w", err)
	}
	return SetupResponse{
		CarName:     decodeName(w.CarName[:]),
		DriverName:  decodeName(w.DriverName[:]),
		Identifier:  w.Identifier,
		Version:     w.Version,
		TrackName:   decodeName(w.TrackName[:]),
		TrackConfig: decodeName(w.TrackConfig[:]),
	}, nil
}

// EncodeSetupResponse is the inverse of DecodeSetupResponse. Names longer
// than 49 code units are truncated.
func EncodeSetupResponse(r SetupResponse) []byte {
	w := setupResponseWire{Identifier: r.Identifier, Version: r.Version}
	encodeName(w.CarName[:], r.CarName)
	encodeName(w.DriverName[:], r.DriverName)
	encodeName(w.TrackName[:], r.TrackName)
	encodeName(w.TrackConfig[:], r.TrackConfig)
	b, _ := binary.Append(make([]byte, 0, SetupResponseSize), le, &w)
	return b
}

func decodeName(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := le.Uint16(b[i:])
		if u == 0 || u == '%' {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func encodeName(dst []byte, s string) {
	units := utf16.Encode([]rune(s))
	limit := len(dst)/2 - 1
	if len(units) > limit {
		units = units[:limit]
	}
	for i, u := range units {
		le.PutUint16(dst[2*i:], u)
	}
	le.PutUint16(dst[2*len(units):], '%')
}

// CarUpdate is the full 328 byte car packet.
type CarUpdate struct {
	Identifier byte
	_          [3]byte
	Size       int32

	SpeedKMH float32
	SpeedMPH float32
	SpeedMS  float32

	ABSEnabled      bool
	ABSInAction     bool
	TCInAction      bool
	TCEnabled       bool
	InPit           bool
	EngineLimiterOn bool
	_               [2]byte

	AccGVertical   float32
	AccGHorizontal float32
	AccGFrontal    float32

	LapTime  int32
	LastLap  int32
	BestLap  int32
	LapCount int32

	Gas       float32
	Brake     float32
	Clutch    float32
	EngineRPM float32
	Steer     float32
	Gear      int32
	CGHeight  float32

	WheelAngularSpeed     [4]float32
	SlipAngle             [4]float32
	SlipAngleContactPatch [4]float32
	SlipRatio             [4]float32
	TyreSlip              [4]float32
	NDSlip                [4]float32
	Load                  [4]float32
	Dy                    [4]float32
	Mz                    [4]float32
	TyreDirtyLevel        [4]float32
	CamberRAD             [4]float32
	TyreRadius            [4]float32
	TyreLoadedRadius      [4]float32
	SuspensionHeight      [4]float32

	CarPositionNormalized float32
	CarSlope              float32
	CarCoordinates        [3]float32
}

// DecodeCarUpdate parses a car update packet.
func DecodeCarUpdate(b []byte) (CarUpdate, error) {
	if len(b) < CarUpdateSize {
		return CarUpdate{}, fmt.Errorf("%w: car update is %d bytes, want %d", ErrShortPacket, len(b), CarUpdateSize)
	}
	if b[0] != carUpdateIdentifier {
		return CarUpdate{}, fmt.Errorf("%w: got %q", ErrBadIdentifier, b[0])
	}
	var u CarUpdate
	if _, err := binary.Decode(b[:CarUpdateSize], le, &u); err != nil {
		return CarUpdate{}, fmt.Errorf("acudp: decode car update: %w", err)
	}
	if u.Size != CarUpdateSize {
		return CarUpdate{}, fmt.Errorf("%w: size field %d", ErrBadSize, u.Size)
	}
	return u, nil
}

// EncodeCarUpdate serializes u, filling in the identifier and size fields.
func EncodeCarUpdate(u CarUpdate) []byte {
	u.Identifier = carUpdateIdentifier
	u.Size = CarUpdateSize
	b, _ := binary.Append(make([]byte, 0, CarUpdateSize), le, &u)
	return b
}

// State extracts the dashboard fields.
func (u CarUpdate) State() telemetry.CarState {
	return telemetry.CarState{
		Gear:      u.Gear,
		Gas:       u.Gas,
		Brake:     u.Brake,
		Clutch:    u.Clutch,
		RPM:       u.EngineRPM,
		SpeedKMH:  u.SpeedKMH,
		LapTimeMS: u.LapTime,
		LastLapMS: u.LastLap,
		BestLapMS: u.BestLap,
		LapCount:  u.LapCount,
	}
}

// CarUpdateFromState builds a packet carrying c. Fields the dashboard does
// not use are left zero, apart from the derived speeds.
func CarUpdateFromState(c telemetry.CarState) CarUpdate {
	return CarUpdate{
		SpeedKMH:  c.SpeedKMH,
		SpeedMPH:  c.SpeedKMH * 0.621371,
		SpeedMS:   c.SpeedKMH / 3.6,
		LapTime:   c.LapTimeMS,
		LastLap:   c.LastLapMS,
		BestLap:   c.BestLapMS,
		LapCount:  c.LapCount,
		Gas:       c.Gas,
		Brake:     c.Brake,
		Clutch:    c.Clutch,
		EngineRPM: c.RPM,
		Gear:      c.Gear,
	}
}
