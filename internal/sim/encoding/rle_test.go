package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeRLE(in)
	out, err := DecodeRLE[uint16](enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_BytesBounded(t *testing.T) {
	in := make([]byte, 2048)
	for i := 1024; i < 2048; i++ {
		in[i] = 0xFF
	}
	enc := EncodeRLE(in)
	out, err := DecodeRLE[byte](enc, 2048)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if out[0] != 0 || out[2047] != 0xFF {
		t.Fatalf("unexpected decode: %x %x", out[0], out[2047])
	}

	if _, err := DecodeRLE[byte](enc, 1024); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := DecodeRLE[byte](enc, 4096); err == nil {
		t.Fatalf("expected short payload error")
	}
	if _, err := DecodeRLE[byte](EncodeRLE([]uint16{300}), 0); err == nil {
		t.Fatalf("expected value range error")
	}
}
