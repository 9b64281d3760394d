package protocol

import (
	"bytes"
	"testing"
)

func mustFrame(t *testing.T, data []byte) []byte {
	t.Helper()
	p, err := EncodeFrame(data)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return p
}

func TestDecoder_singlePacket(t *testing.T) {
	d := NewDecoder()
	data := []byte{0x00, 0x2B, 0x00, 0x0A, 0x00, 0x02, 0x00, 0x01}

	got := d.Feed(mustFrame(t, data))
	if len(got) != 1 || !bytes.Equal(got[0], data) {
		t.Fatalf("Feed() = %v, want one segment % X", got, data)
	}
	if frames, corrupted, skipped := d.Stats(); frames != 1 || corrupted != 0 || skipped != 0 {
		t.Errorf("Stats() = %d, %d, %d", frames, corrupted, skipped)
	}
}

func TestDecoder_byteAtATime(t *testing.T) {
	d := NewDecoder()
	data := []byte{9, 8, 7}
	var got [][]byte
	for _, b := range mustFrame(t, data) {
		got = append(got, d.Feed([]byte{b})...)
	}
	if len(got) != 1 || !bytes.Equal(got[0], data) {
		t.Errorf("got %v", got)
	}
}

func TestDecoder_resyncsAfterGarbage(t *testing.T) {
	d := NewDecoder()
	data := []byte{1, 2, 3, 4}

	stream := append([]byte{0x00, 0xA4, 0x11, 0x42, 0xFF}, mustFrame(t, data)...)
	got := d.Feed(stream)
	if len(got) != 1 || !bytes.Equal(got[0], data) {
		t.Fatalf("Feed() = %v", got)
	}
	if _, _, skipped := d.Stats(); skipped != 5 {
		t.Errorf("skipped = %d, want 5", skipped)
	}
}

func TestDecoder_dropsCorruptPacket(t *testing.T) {
	d := NewDecoder()
	bad := mustFrame(t, []byte{1, 2, 3})
	bad[len(bad)-1] ^= 0x10
	good := mustFrame(t, []byte{4, 5, 6})

	got := d.Feed(append(bad, good...))
	if len(got) != 1 || !bytes.Equal(got[0], []byte{4, 5, 6}) {
		t.Fatalf("Feed() = %v", got)
	}
	if _, corrupted, _ := d.Stats(); corrupted != 1 {
		t.Errorf("corrupted = %d, want 1", corrupted)
	}
}

func TestDecoder_backToBack(t *testing.T) {
	d := NewDecoder()
	var stream []byte
	for i := 0; i < 3; i++ {
		s := SessionState{Time: uint16(i), Colour: ColourGreen}
		stream = append(stream, mustFrame(t, s.DataSegment())...)
	}

	got := d.Feed(stream)
	if len(got) != 3 {
		t.Fatalf("got %d segments, want 3", len(got))
	}
	for i, seg := range got {
		s, err := DecodeState(seg)
		if err != nil {
			t.Fatalf("DecodeState: %v", err)
		}
		if s.Time != uint16(i) {
			t.Errorf("segment %d time = %d", i, s.Time)
		}
	}
}

func TestDecoder_rejectsImpossibleLength(t *testing.T) {
	d := NewDecoder()
	// header followed by a length shorter than the overhead is not a packet
	stream := append(append([]byte{}, Header[:]...), 0x03)
	stream = append(stream, mustFrame(t, []byte{7})...)

	got := d.Feed(stream)
	if len(got) != 1 || !bytes.Equal(got[0], []byte{7}) {
		t.Fatalf("Feed() = %v", got)
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	p := mustFrame(t, []byte{1, 2, 3})
	d.Feed(p[:6])
	d.Reset()
	if got := d.Feed(p); len(got) != 1 {
		t.Errorf("expected a clean packet after Reset, got %v", got)
	}
}
