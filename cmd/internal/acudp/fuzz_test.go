package acudp

import (
	"bytes"
	"os"
	"testing"
)

func FuzzDecodeCarUpdate(f *testing.F) {
	if b, err := os.ReadFile("testdata/car_update.bin"); err == nil {
		f.Add(b)
	}
	f.Add([]byte{'a', 0, 0, 0})
	f.Add(make([]byte, CarUpdateSize))

	f.Fuzz(func(t *testing.T, b []byte) {
		u, err := DecodeCarUpdate(b)
		if err != nil {
			return
		}
		once := EncodeCarUpdate(u)
		if len(once) != CarUpdateSize {
			t.Fatalf("encoded %d bytes", len(once))
		}
		again, err := DecodeCarUpdate(once)
		if err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		if !bytes.Equal(once, EncodeCarUpdate(again)) {
			t.Fatalf("encoding not stable")
		}
		_ = u.State()
	})
}

func FuzzDecodeSetupResponse(f *testing.F) {
	if b, err := os.ReadFile("testdata/setup_response.bin"); err == nil {
		f.Add(b)
	}
	f.Add(make([]byte, SetupResponseSize))

	f.Fuzz(func(t *testing.T, b []byte) {
		r, err := DecodeSetupResponse(b)
		if err != nil {
			return
		}
		if _, err := DecodeSetupResponse(EncodeSetupResponse(r)); err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		_, _ = DecodeRequest(b)
	})
}
