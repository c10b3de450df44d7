package loader

import (
	"context"

	"github.com/atnpgo/arwes/internal/media"
	"github.com/atnpgo/arwes/internal/model"
)

// LoadImage waits until the image at url is fully decoded.
func LoadImage(ctx context.Context, url string) error {
	return watch(ctx, media.DefaultSource, model.KindImage, url)
}

// LoadSound waits until the sound at url can play through.
func LoadSound(ctx context.Context, url string) error {
	return watch(ctx, media.DefaultSource, model.KindSound, url)
}

// LoadVideo waits until the video at url can play through.
func LoadVideo(ctx context.Context, url string) error {
	return watch(ctx, media.DefaultSource, model.KindVideo, url)
}

// DefaultDependencies returns the default loaders bound to src.
func DefaultDependencies(src *media.Source) Dependencies {
	if src == nil {
		src = media.DefaultSource
	}
	return Dependencies{
		LoadImage: watchFunc(src, model.KindImage),
		LoadSound: watchFunc(src, model.KindSound),
		LoadVideo: watchFunc(src, model.KindVideo),
	}
}

func watchFunc(src *media.Source, kind model.Kind) LoadFunc {
	return func(ctx context.Context, url string) error {
		return watch(ctx, src, kind, url)
	}
}

// watch turns the media ready/error/abort events into one outcome.
func watch(ctx context.Context, src *media.Source, kind model.Kind, url string) error {
	c := NewCompletion()
	media.Watch(ctx, src, kind, url, media.Handlers{
		Ready: func() { c.Resolve() },
		Error: func(err error) { c.Reject(err) },
		Abort: func() { c.Reject(ErrAborted) },
	})
	return c.Wait(ctx)
}
