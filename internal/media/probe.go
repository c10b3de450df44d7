package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"net/http"

	// Decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/atnpgo/arwes/internal/model"
)

// ErrUnsupported is returned when the bytes do not look like a playable or
// decodable resource of the requested kind.
var ErrUnsupported = errors.New("unsupported media format")

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// ProbeImage fully decodes data, which is what a browser waits for before
// firing an image load event.
func ProbeImage(data []byte) (ImageInfo, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return ImageInfo{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return ImageInfo{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	return ImageInfo{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// ProbeAudio returns the container format of an audio resource.
func ProbeAudio(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "audio/wave":
		return "wav", nil
	case "audio/aiff":
		return "aiff", nil
	case "audio/mpeg":
		return "mp3", nil
	case "application/ogg":
		return "ogg", nil
	case "audio/basic":
		return "au", nil
	}

	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac", nil
	case isADTS(data):
		return "aac", nil
	case isMPEGFrame(data):
		return "mp3", nil
	}
	if brand, ok := ftypBrand(data); ok {
		switch brand {
		case "M4A ", "M4B ", "M4P ", "F4A ", "mp42", "isom":
			return "m4a", nil
		}
		return "", fmt.Errorf("%w: iso media brand %q is not audio", ErrUnsupported, brand)
	}
	return "", fmt.Errorf("%w: not an audio stream", ErrUnsupported)
}

// ProbeVideo returns the container format of a video resource.
func ProbeVideo(data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}) &&
		bytes.Contains(data[:min(len(data), 64)], []byte("matroska")) {
		return "mkv", nil
	}

	switch http.DetectContentType(data) {
	case "video/webm":
		return "webm", nil
	case "video/avi":
		return "avi", nil
	case "application/ogg":
		return "ogg", nil
	}

	if brand, ok := ftypBrand(data); ok {
		if brand == "qt  " {
			return "mov", nil
		}
		return "mp4", nil
	}
	return "", fmt.Errorf("%w: not a video stream", ErrUnsupported)
}

// Probe dispatches to the probe for kind and discards the details.
func Probe(kind model.Kind, data []byte) error {
	var err error
	switch kind {
	case model.KindImage:
		_, err = ProbeImage(data)
	case model.KindSound:
		_, err = ProbeAudio(data)
	case model.KindVideo:
		_, err = ProbeVideo(data)
	default:
		err = fmt.Errorf("%w: kind %q", ErrUnsupported, kind)
	}
	return err
}

// ftypBrand reads the major brand of an ISO base media file.
func ftypBrand(data []byte) (string, bool) {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return "", false
	}
	if size := binary.BigEndian.Uint32(data[:4]); size < 12 {
		return "", false
	}
	return string(data[8:12]), true
}

func isADTS(data []byte) bool {
	return len(data) >= 7 && data[0] == 0xFF && data[1]&0xF6 == 0xF0
}

// isMPEGFrame matches an MPEG audio frame header without an ID3 tag.
func isMPEGFrame(data []byte) bool {
	if len(data) < 4 || data[0] != 0xFF || data[1]&0xE0 != 0xE0 {
		return false
	}
	version := (data[1] >> 3) & 0x03
	layer := (data[1] >> 1) & 0x03
	bitrate := data[2] >> 4
	rate := (data[2] >> 2) & 0x03
	return version != 1 && layer != 0 && bitrate != 0x0F && rate != 0x03
}
