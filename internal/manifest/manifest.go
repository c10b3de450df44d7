// Package manifest reads preload manifests: TOML files naming the images,
// sounds and videos to load together and how to load them.
//
//	timeout = "5s"
//	concurrency = 4
//	images = ["a.png"]
//	sounds = ["click.wav"]
//	videos = ["intro.mp4"]
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/atnpgo/arwes/internal/loader"
	"github.com/atnpgo/arwes/internal/model"
)

// Manifest is a decoded preload manifest.
type Manifest struct {
	Timeout     time.Duration
	Concurrency int
	Images      []string
	Sounds      []string
	Videos      []string
}

type document struct {
	Timeout     string   `toml:"timeout"`
	Concurrency int      `toml:"concurrency"`
	Images      []string `toml:"images"`
	Sounds      []string `toml:"sounds"`
	Videos      []string `toml:"videos"`
}

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	m := &Manifest{
		Concurrency: doc.Concurrency,
		Images:      doc.Images,
		Sounds:      doc.Sounds,
		Videos:      doc.Videos,
	}
	if doc.Timeout != "" {
		d, err := time.ParseDuration(doc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("manifest timeout: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("manifest timeout %s is negative", d)
		}
		m.Timeout = d
	}
	if m.Concurrency < 0 {
		return nil, fmt.Errorf("manifest concurrency %d is negative", m.Concurrency)
	}
	if err := m.Request().Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Request returns the batch the manifest describes.
func (m *Manifest) Request() model.Request {
	return model.Request{Images: m.Images, Sounds: m.Sounds, Videos: m.Videos}
}

// Options returns the load options the manifest describes. A zero timeout
// leaves the loader default in place.
func (m *Manifest) Options() loader.Options {
	return loader.Options{Timeout: m.Timeout, MaxConcurrency: m.Concurrency}
}
