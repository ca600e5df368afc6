package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildWAV_ParseWAV_RoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := BuildWAV(pcm, 16000, 1)

	if !IsWAV(wav) {
		t.Fatal("BuildWAV output not recognised by IsWAV")
	}

	got, info, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("info = %+v, want 16000/1/16", info)
	}
}

func TestParseWAV_NotWAV(t *testing.T) {
	_, _, err := ParseWAV([]byte("ID3 definitely not a wav"))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestParseWAV_SkipsExtraChunks(t *testing.T) {
	pcm := []byte{9, 9, 9, 9}
	wav := BuildWAV(pcm, 8000, 2)

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0x04, 0, 0, 0, 'I', 'N', 'F', 'O')
	spliced := append([]byte{}, wav[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, wav[36:]...)

	got, info, err := ParseWAV(spliced)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
	if info.Channels != 2 {
		t.Errorf("channels = %d, want 2", info.Channels)
	}
}

func TestParseWAV_RejectsNonPCM(t *testing.T) {
	wav := BuildWAV([]byte{0, 0}, 16000, 1)
	wav[20] = 3 // IEEE float format tag
	if _, _, err := ParseWAV(wav); err == nil {
		t.Error("expected error for non-PCM format tag")
	}
}
