// Package media provides the platform primitives that decide when a media
// resource is ready to use: fetching bytes from HTTP or the filesystem and
// probing them as an image (decode complete), a sound or a video (enough
// data to play through).
//
// Readiness is reported through event-style Handlers. A single watch may
// report more than one terminal event, for example an error from a cancelled
// read followed by an abort; callers that need one outcome must guard against
// double settlement themselves.
package media
