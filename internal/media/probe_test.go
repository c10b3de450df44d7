package media

import (
	"errors"
	"testing"

	"github.com/atnpgo/arwes/internal/media/mediatest"
	"github.com/atnpgo/arwes/internal/model"
)

func TestProbeImagePNG(t *testing.T) {
	info, err := ProbeImage(mediatest.PNG())
	if err != nil {
		t.Fatalf("ProbeImage: %v", err)
	}
	if info.Format != "png" {
		t.Errorf("Format = %q, want %q", info.Format, "png")
	}
	if info.Width != 2 || info.Height != 2 {
		t.Errorf("size = %dx%d, want 2x2", info.Width, info.Height)
	}
}

func TestProbeImageGarbage(t *testing.T) {
	_, err := ProbeImage([]byte("not an image"))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("ProbeImage(garbage) error = %v, want ErrUnsupported", err)
	}
}

func TestProbeImageTruncated(t *testing.T) {
	data := mediatest.PNG()
	_, err := ProbeImage(data[:len(data)/2])
	if err == nil {
		t.Fatal("ProbeImage(truncated) returned nil error")
	}
}

func TestProbeAudio(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", mediatest.WAV(), "wav"},
		{"id3", append([]byte("ID3\x04\x00\x00"), make([]byte, 32)...), "mp3"},
		{"mpeg frame", []byte{0xFF, 0xFB, 0x90, 0x64, 0x00, 0x00}, "mp3"},
		{"ogg", append([]byte("OggS\x00\x02"), make([]byte, 32)...), "ogg"},
		{"flac", append([]byte("fLaC"), make([]byte, 32)...), "flac"},
		{"adts", []byte{0xFF, 0xF1, 0x50, 0x80, 0x02, 0x1F, 0xFC}, "aac"},
		{"m4a", append([]byte{0, 0, 0, 20}, []byte("ftypM4A \x00\x00\x00\x00M4A ")...), "m4a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProbeAudio(tt.data)
			if err != nil {
				t.Fatalf("ProbeAudio: %v", err)
			}
			if got != tt.want {
				t.Errorf("ProbeAudio = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeAudioRejects(t *testing.T) {
	for name, data := range map[string][]byte{
		"png":       mediatest.PNG(),
		"quicktime": append([]byte{0, 0, 0, 20}, []byte("ftypqt  \x00\x00\x00\x00qt  ")...),
		"text":      []byte("hello"),
	} {
		if _, err := ProbeAudio(data); !errors.Is(err, ErrUnsupported) {
			t.Errorf("ProbeAudio(%s) error = %v, want ErrUnsupported", name, err)
		}
	}
}

func TestProbeVideo(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"mp4", mediatest.MP4(), "mp4"},
		{"webm", mediatest.WebM(), "webm"},
		{"mov", append([]byte{0, 0, 0, 20}, []byte("ftypqt  \x00\x00\x00\x00qt  ")...), "mov"},
		{"mkv", append([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x93, 0x42, 0x82, 0x88}, []byte("matroska")...), "mkv"},
		{"avi", append([]byte("RIFF\x00\x00\x00\x00AVI LIST"), make([]byte, 16)...), "avi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProbeVideo(tt.data)
			if err != nil {
				t.Fatalf("ProbeVideo: %v", err)
			}
			if got != tt.want {
				t.Errorf("ProbeVideo = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeVideoRejectsAudio(t *testing.T) {
	if _, err := ProbeVideo(mediatest.WAV()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ProbeVideo(wav) error = %v, want ErrUnsupported", err)
	}
}

func TestProbeDispatch(t *testing.T) {
	if err := Probe(model.KindImage, mediatest.PNG()); err != nil {
		t.Errorf("Probe(image): %v", err)
	}
	if err := Probe(model.KindSound, mediatest.WAV()); err != nil {
		t.Errorf("Probe(sound): %v", err)
	}
	if err := Probe(model.KindVideo, mediatest.MP4()); err != nil {
		t.Errorf("Probe(video): %v", err)
	}
	if err := Probe("texture", mediatest.PNG()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Probe(texture) error = %v, want ErrUnsupported", err)
	}
}
