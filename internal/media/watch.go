package media

import (
	"context"

	"github.com/atnpgo/arwes/internal/model"
)

// Handlers receive the terminal events of a watch. Any of them may be nil.
type Handlers struct {
	Ready func()
	Error func(error)
	Abort func()
}

// Watch fetches and probes the resource in the background and reports the
// outcome through h. When ctx is done before the watch finishes, Abort fires;
// the interrupted fetch usually reports Error as well.
func Watch(ctx context.Context, src *Source, kind model.Kind, url string, h Handlers) {
	if src == nil {
		src = DefaultSource
	}
	go func() {
		stop := context.AfterFunc(ctx, func() {
			if h.Abort != nil {
				h.Abort()
			}
		})
		defer stop()

		err := Ready(ctx, src, kind, url)
		if err != nil {
			if h.Error != nil {
				h.Error(err)
			}
			return
		}
		if h.Ready != nil {
			h.Ready()
		}
	}()
}

// Ready reads the whole resource and probes it for kind.
func Ready(ctx context.Context, src *Source, kind model.Kind, url string) error {
	data, err := src.ReadAll(ctx, url)
	if err != nil {
		return err
	}
	return Probe(kind, data)
}
