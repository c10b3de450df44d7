package model

import (
	"fmt"
	"path"
	"strings"
)

// Kind tags a resource with the media type that decides how it is loaded.
type Kind string

// Resource kinds, in fan-out declaration order.
const (
	KindImage Kind = "image"
	KindSound Kind = "sound"
	KindVideo Kind = "video"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindImage, KindSound, KindVideo}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindSound, KindVideo:
		return true
	}
	return false
}

// Descriptor identifies one loadable media item.
type Descriptor struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

func (d Descriptor) String() string {
	return string(d.Kind) + " " + d.URL
}

// Request is a batch of resources grouped by kind. Nil slices are empty.
type Request struct {
	Images []string `json:"images,omitempty"`
	Sounds []string `json:"sounds,omitempty"`
	Videos []string `json:"videos,omitempty"`
}

// Len returns the number of resources in the batch.
func (r Request) Len() int {
	return len(r.Images) + len(r.Sounds) + len(r.Videos)
}

// Empty reports whether the batch requests nothing.
func (r Request) Empty() bool {
	return r.Len() == 0
}

// Descriptors flattens the batch: images, then sounds, then videos.
func (r Request) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, r.Len())
	for _, u := range r.Images {
		out = append(out, Descriptor{Kind: KindImage, URL: u})
	}
	for _, u := range r.Sounds {
		out = append(out, Descriptor{Kind: KindSound, URL: u})
	}
	for _, u := range r.Videos {
		out = append(out, Descriptor{Kind: KindVideo, URL: u})
	}
	return out
}

// Add appends url to the slice for kind.
func (r *Request) Add(kind Kind, url string) error {
	switch kind {
	case KindImage:
		r.Images = append(r.Images, url)
	case KindSound:
		r.Sounds = append(r.Sounds, url)
	case KindVideo:
		r.Videos = append(r.Videos, url)
	default:
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	return nil
}

// Validate rejects blank URLs.
func (r Request) Validate() error {
	for _, d := range r.Descriptors() {
		if strings.TrimSpace(d.URL) == "" {
			return fmt.Errorf("%s url must not be empty", d.Kind)
		}
	}
	return nil
}

var kindByExt = map[string]Kind{
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".wav":  KindSound,
	".mp3":  KindSound,
	".ogg":  KindSound,
	".oga":  KindSound,
	".flac": KindSound,
	".aac":  KindSound,
	".m4a":  KindSound,
	".aif":  KindSound,
	".aiff": KindSound,
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".mov":  KindVideo,
	".webm": KindVideo,
	".mkv":  KindVideo,
	".ogv":  KindVideo,
	".avi":  KindVideo,
}

// KindFromURL guesses the kind from the file extension of url, ignoring any
// query string or fragment.
func KindFromURL(url string) (Kind, bool) {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	k, ok := kindByExt[strings.ToLower(path.Ext(url))]
	return k, ok
}
