// Package mediatest builds minimal media payloads and an HTTP server that
// serves them, for tests of code that loads real resources.
package mediatest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// PNG returns a 2x2 opaque PNG.
func PNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, color.NRGBA{R: 0x26, G: 0xDA, B: 0xFD, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WAV returns a short silent 8-bit mono PCM WAV file.
func WAV() []byte {
	samples := make([]byte, 64)
	for i := range samples {
		samples[i] = 0x80
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(8000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // block align
	binary.Write(&buf, binary.LittleEndian, uint16(8))    // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

// MP4 returns an ftyp box followed by an empty mdat box.
func MP4() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(24))
	buf.WriteString("ftyp")
	buf.WriteString("isom")
	binary.Write(&buf, binary.BigEndian, uint32(0x200))
	buf.WriteString("isommp41")
	binary.Write(&buf, binary.BigEndian, uint32(8))
	buf.WriteString("mdat")
	return buf.Bytes()
}

// WebM returns an EBML header with a webm doctype.
func WebM() []byte {
	return []byte{
		0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01,
		0x42, 0xF7, 0x81, 0x01, 0x42, 0xF2, 0x81, 0x04,
		0x42, 0xF3, 0x81, 0x08, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm',
		0x42, 0x87, 0x81, 0x04, 0x42, 0x85, 0x81, 0x02,
	}
}

// Server serves the fixtures at /image.png, /sound.wav, /video.mp4 and
// /video.webm, a 404 at /missing, a payload that is not any media at
// /garbage, and /slow (also at /slow.mp4), which never answers before the
// client gives up.
// The server is closed when the test ends.
func Server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	serve := func(path, contentType string, body []byte) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			w.Write(body)
		})
	}
	serve("/image.png", "image/png", PNG())
	serve("/sound.wav", "audio/wav", WAV())
	serve("/video.mp4", "video/mp4", MP4())
	serve("/video.webm", "video/webm", WebM())
	serve("/garbage", "application/octet-stream", []byte("definitely not media"))
	mux.HandleFunc("/missing", http.NotFound)

	done := make(chan struct{})
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		case <-time.After(30 * time.Second):
		}
	}
	mux.HandleFunc("/slow", slow)
	mux.HandleFunc("/slow.mp4", slow)

	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		close(done)
		ts.Close()
	})
	return ts
}
