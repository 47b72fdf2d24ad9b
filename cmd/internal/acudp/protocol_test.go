package acudp

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return b
}

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestDecodeSetupResponse_Fixture(t *testing.T) {
	t.Parallel()

	b := readFixture(t, "setup_response.bin")
	if len(b) != SetupResponseSize {
		t.Fatalf("fixture size=%d", len(b))
	}

	resp, err := DecodeSetupResponse(b)
	if err != nil {
		t.Fatalf("DecodeSetupResponse: %v", err)
	}

	want := SetupResponse{
		CarName:     "gr2_opel_kadett",
		DriverName:  "myname",
		Identifier:  4242,
		Version:     1,
		TrackName:   "ks_brands_hatch",
		TrackConfig: "ks_brands_hatch",
	}
	if resp != want {
		t.Fatalf("resp=%+v want=%+v", resp, want)
	}
}

func TestDecodeCarUpdate_Fixture(t *testing.T) {
	t.Parallel()

	u, err := DecodeCarUpdate(readFixture(t, "car_update.bin"))
	if err != nil {
		t.Fatalf("DecodeCarUpdate: %v", err)
	}

	if u.Identifier != 'a' || u.Size != CarUpdateSize {
		t.Fatalf("identifier=%q size=%d", u.Identifier, u.Size)
	}
	if u.LapTime != 24081 || u.LastLap != 0 || u.BestLap != 0 || u.LapCount != 0 {
		t.Fatalf("laps: time=%d last=%d best=%d count=%d", u.LapTime, u.LastLap, u.BestLap, u.LapCount)
	}
	if u.Gas != 0 || u.Brake != 0 || u.Clutch != 1 {
		t.Fatalf("pedals: gas=%v brake=%v clutch=%v", u.Gas, u.Brake, u.Clutch)
	}
	if !almostEqual(u.EngineRPM, 851.0112) {
		t.Fatalf("rpm=%v", u.EngineRPM)
	}
	if u.Gear != 1 {
		t.Fatalf("gear=%d", u.Gear)
	}
	if !almostEqual(u.SpeedKMH, 0.0068263) {
		t.Fatalf("speed=%v", u.SpeedKMH)
	}
	if u.ABSEnabled || u.InPit || u.EngineLimiterOn {
		t.Fatalf("flags should be false: %+v", u)
	}
	if !almostEqual(u.CarPositionNormalized, 0.9893087) {
		t.Fatalf("position=%v", u.CarPositionNormalized)
	}
	wantCoords := [3]float32{-153.18791, -8.174798, -375.89432}
	for i := range wantCoords {
		if !almostEqual(u.CarCoordinates[i], wantCoords[i]) {
			t.Fatalf("coords=%v want=%v", u.CarCoordinates, wantCoords)
		}
	}

	st := u.State()
	if st.Gear != 1 || st.LapTimeMS != 24081 || st.Clutch != 1 || st.RPM != u.EngineRPM {
		t.Fatalf("state=%+v", st)
	}
}

func TestDecodeCarUpdate_Rejects(t *testing.T) {
	t.Parallel()

	good := readFixture(t, "car_update.bin")

	short := good[:CarUpdateSize-1]
	if _, err := DecodeCarUpdate(short); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("short: err=%v", err)
	}

	badID := append([]byte(nil), good...)
	badID[0] = 'b'
	if _, err := DecodeCarUpdate(badID); !errors.Is(err, ErrBadIdentifier) {
		t.Fatalf("bad identifier: err=%v", err)
	}

	badSize := append([]byte(nil), good...)
	badSize[4] = 0x10
	if _, err := DecodeCarUpdate(badSize); !errors.Is(err, ErrBadSize) {
		t.Fatalf("bad size: err=%v", err)
	}

	if _, err := DecodeSetupResponse(make([]byte, 12)); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("short setup: err=%v", err)
	}
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	b := EncodeRequest(OpSubscribeUpdate)
	want := []byte{1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0}
	if string(b) != string(want) {
		t.Fatalf("EncodeRequest=% x want % x", b, want)
	}

	req, err := DecodeRequest(EncodeRequest(OpDismiss))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Identifier != 1 || req.Version != 1 || req.OperationID != OpDismiss {
		t.Fatalf("req=%+v", req)
	}
}

func TestEncodeSetupResponse_MatchesFixture(t *testing.T) {
	t.Parallel()

	fixture := readFixture(t, "setup_response.bin")
	resp, err := DecodeSetupResponse(fixture)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	again, err := DecodeSetupResponse(EncodeSetupResponse(resp))
	if err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	if again != resp {
		t.Fatalf("again=%+v want=%+v", again, resp)
	}
}

func TestNames_UnicodeAndTruncation(t *testing.T) {
	t.Parallel()

	resp := SetupResponse{
		CarName:    "ks_ferrari_488_gt3",
		DriverName: "Jürgen Świątek",
		TrackName:  strings.Repeat("x", 80),
	}
	got, err := DecodeSetupResponse(EncodeSetupResponse(resp))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DriverName != resp.DriverName {
		t.Fatalf("driver=%q", got.DriverName)
	}
	if len(got.TrackName) != 49 {
		t.Fatalf("track name len=%d, want truncation to 49", len(got.TrackName))
	}
}

func TestDecodeName_StopsAtTerminator(t *testing.T) {
	t.Parallel()

	b := make([]byte, nameBytes)
	for i, r := range "ab%cd" {
		b[2*i] = byte(r)
	}
	if got := decodeName(b); got != "ab" {
		t.Fatalf("decodeName=%q", got)
	}
}
