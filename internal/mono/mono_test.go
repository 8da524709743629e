package mono

import (
	"errors"
	"testing"

	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
)

// placeString lays out a string object the way the runtime does:
// int32 length at +0x10, UTF-16LE payload at +0x14.
func placeString(im *memio.Image, addr uint64, s string) {
	runes := []rune(s)
	im.PutU32(addr+0x10, uint32(len(runes)))
	if len(runes) > 0 {
		im.PutUTF16(addr+0x14, s)
	}
}

func TestDecode(t *testing.T) {
	im := memio.NewImage()
	d := StringDecoder{R: im, Offsets: layout.Default()}

	placeString(im, 0x1000, "kernel panic @ col 7")
	got, err := d.Decode(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got != "kernel panic @ col 7" {
		t.Errorf("Decode = %q", got)
	}
}

func TestDecodeNonASCII(t *testing.T) {
	im := memio.NewImage()
	d := StringDecoder{R: im, Offsets: layout.Default()}

	placeString(im, 0x1000, "läge: grön")
	got, err := d.Decode(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got != "läge: grön" {
		t.Errorf("Decode = %q", got)
	}
}

func TestDecodeEmpty(t *testing.T) {
	im := memio.NewImage()
	// Only the length field is mapped: a zero length must not read the
	// payload at all.
	im.PutU32(0x1000+0x10, 0)
	d := StringDecoder{R: im, Offsets: layout.Default()}
	got, err := d.Decode(0x1000)
	if err != nil || got != "" {
		t.Errorf("Decode = %q, %v; want empty, nil", got, err)
	}
}

func TestDecodeImplausibleLength(t *testing.T) {
	im := memio.NewImage()
	im.PutU32(0x1000+0x10, MaxStringLength+1)
	d := StringDecoder{R: im, Offsets: layout.Default()}

	_, err := d.Decode(0x1000)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Decode = %v, want *DecodeError", err)
	}

	// Negative length, same deal.
	im2 := memio.NewImage()
	im2.PutU32(0x1000+0x10, 0xffffffff)
	d2 := StringDecoder{R: im2, Offsets: layout.Default()}
	if _, err := d2.Decode(0x1000); !errors.As(err, &de) {
		t.Fatalf("negative length: %v, want *DecodeError", err)
	}
}

func TestDecodeUnreadablePayload(t *testing.T) {
	im := memio.NewImage()
	im.PutU32(0x1000+0x10, 8) // claims 8 chars, payload unmapped
	d := StringDecoder{R: im, Offsets: layout.Default()}

	_, err := d.Decode(0x1000)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Decode = %v, want *DecodeError", err)
	}
	var fault *memio.ReadFault
	if !errors.As(err, &fault) {
		t.Errorf("DecodeError should wrap the underlying ReadFault, got %v", err)
	}
}

func TestReadCString(t *testing.T) {
	im := memio.NewImage()
	im.PutCString(0x2000, "Window")
	// pad so a max-sized read fits
	im.Place(0x2007, make([]byte, 64))

	got, err := ReadCString(im, 0x2000, 32)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Window" {
		t.Errorf("ReadCString = %q", got)
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	im := memio.NewImage()
	im.Place(0x2000, []byte("AAAAAAAAAAAAAAAA"))
	if _, err := ReadCString(im, 0x2000, 8); err == nil {
		t.Error("unterminated string should error")
	}
}

func TestValidPointer(t *testing.T) {
	tests := []struct {
		p    uint64
		want bool
	}{
		{0, false},
		{0x800, false},
		{0x1000, false},
		{0x55e7c8a01234, true},
		{0x7fffffffffff, false},
		{0xffff800000000000, false},
	}
	for _, tt := range tests {
		if got := ValidPointer(tt.p); got != tt.want {
			t.Errorf("ValidPointer(%#x) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
