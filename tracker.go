// Package hybtrack implements a hybrid multi-object visual tracker: a
// byte-style two-stage detection tracker amortised across keyframes by a
// sparse optical-flow tracker on the frames in between, coordinated by a
// hybrid controller that resynchronises the detector's Kalman state from
// the flow tracker's output.
//
// The package boundary is a function-level API over in-memory structures
// (§6): callers marshal detections and frames in, and get back normalised
// track tuples. There is no wire protocol, no file I/O, and no persisted
// state — Reset and Destroy return the instance to (or below) its initial
// footprint.
package hybtrack

import (
	"log"

	"github.com/LdDl/hybtrack/internal/detector"
	"github.com/LdDl/hybtrack/internal/flow"
	"github.com/LdDl/hybtrack/internal/geom"
	"github.com/LdDl/hybtrack/internal/track"
	"github.com/pkg/errors"
)

const detectionTupleSize = 6
const trackTupleSize = 7

// Controller is a single hybrid tracker instance. It is not safe for
// concurrent use from more than one goroutine (§5).
type Controller struct {
	frameWidth       int
	frameHeight      int
	keyframeInterval int
	detector         *detector.Tracker
	flow             *flow.Tracker
	logger           *log.Logger
}

// Create builds a tracker instance. keyframeInterval must be >= 1; a value
// of 1 puts the controller into pure-bytetrack mode, bypassing the
// optical-flow subsystem entirely (§4.E option A).
func Create(frameRate, trackBuffer, frameWidth, frameHeight, keyframeInterval int) (*Controller, error) {
	if frameWidth <= 0 || frameHeight <= 0 || keyframeInterval < 1 {
		return nil, ErrInvalidInput
	}
	c := &Controller{
		frameWidth:       frameWidth,
		frameHeight:      frameHeight,
		keyframeInterval: keyframeInterval,
		detector:         detector.New(frameRate, trackBuffer),
		flow:             flow.New(),
	}
	return c, nil
}

// SetLogger attaches an optional logger to both subsystems, for observing
// swallowed per-track failures and dropped resync ids. A nil logger
// discards everything, the default.
func (c *Controller) SetLogger(l *log.Logger) {
	c.logger = l
	c.detector.SetLogger(l)
	c.flow.SetLogger(l)
}

func (c *Controller) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Reset clears all tracker state — pools, the frame counter, the id
// generator, and the cached optical-flow frame — without discarding the
// instance itself.
func (c *Controller) Reset() {
	c.detector.Reset()
	c.flow.Close()
	c.flow = flow.New()
	c.flow.SetLogger(c.logger)
}

// Destroy releases native resources held by the optical-flow subsystem.
// The controller must not be used afterwards.
func (c *Controller) Destroy() {
	c.flow.Close()
}

// FrameCount reports the detection tracker's internal frame counter,
// exposed for host-side diagnostics (mirrors the original's
// getFrameCount()).
func (c *Controller) FrameCount() int {
	return c.detector.FrameID()
}

// UpdateWithDetections is the keyframe entry point (§4.E). detections is the
// flat 6-floats-per-detection wire tuple: (cx_norm, cy_norm, w_norm, h_norm,
// class_id_as_float, confidence). The returned slice is the flat
// 7-floats-per-track wire tuple: (cx_norm, cy_norm, w_norm, h_norm,
// class_id_as_float, confidence, track_id_as_float).
func (c *Controller) UpdateWithDetections(frameBytes []byte, width, height int, detections []float64) ([]float64, error) {
	if width != c.frameWidth || height != c.frameHeight {
		return nil, ErrInvalidInput
	}
	frame := geom.Frame{Data: frameBytes, Width: width, Height: height}
	if err := frame.Validate(); err != nil {
		return nil, ErrInvalidInput
	}
	dets, err := decodeDetections(detections, width, height)
	if err != nil {
		return nil, err
	}

	snapshots := c.detector.Update(dets)

	if c.keyframeInterval == 1 {
		return encodeSnapshots(snapshots, width, height), nil
	}

	if err := c.flow.InitializeTrackers(frame, snapshots); err != nil {
		return nil, errors.Wrap(err, "hybtrack: initialise optical-flow trackers")
	}
	return encodeSnapshots(snapshots, width, height), nil
}

// UpdateWithoutDetections is the intermediate-frame entry point (§4.E). It
// is only legal when the controller was created with keyframe_interval > 1.
func (c *Controller) UpdateWithoutDetections(frameBytes []byte, width, height int) ([]float64, error) {
	if c.keyframeInterval == 1 {
		return nil, ErrIntermediateNotAllowed
	}
	if width != c.frameWidth || height != c.frameHeight {
		return nil, ErrInvalidInput
	}
	frame := geom.Frame{Data: frameBytes, Width: width, Height: height}
	if err := frame.Validate(); err != nil {
		return nil, ErrInvalidInput
	}

	propagated, err := c.flow.UpdateTrackers(frame)
	if err != nil {
		return nil, errors.Wrap(err, "hybtrack: propagate optical-flow trackers")
	}
	if propagated == nil {
		// NoOp (§7): the flow tracker had no cached previous frame, so this
		// frame was only cached and nothing was propagated. frame_id still advances so
		// max_time_lost accounting stays keyed to wall-frames, per the §9
		// open-question resolution recorded in DESIGN.md.
		c.detector.AdvanceFrameID()
		return []float64{}, nil
	}

	nextFrameID := c.detector.FrameID() + 1
	for _, p := range propagated {
		det := track.Detection{Box: p.Box, Class: p.Class, Score: p.Score}
		found, resyncErr := c.detector.Resync(p.ID, det, nextFrameID)
		if resyncErr != nil {
			c.logf("hybtrack: resync track %d: %v", p.ID, resyncErr)
			continue
		}
		if !found {
			c.logf("hybtrack: resync: unknown track id %d dropped", p.ID)
		}
	}
	c.detector.AdvanceFrameID()

	return encodePropagated(propagated, width, height), nil
}

func decodeDetections(raw []float64, width, height int) ([]track.Detection, error) {
	if len(raw)%detectionTupleSize != 0 {
		return nil, ErrInvalidInput
	}
	n := len(raw) / detectionTupleSize
	dets := make([]track.Detection, 0, n)
	for i := 0; i < n; i++ {
		base := i * detectionTupleSize
		cx, cy, w, h := raw[base], raw[base+1], raw[base+2], raw[base+3]
		class := int(raw[base+4])
		score := raw[base+5]
		box := geom.FromNormalized(cx, cy, w, h, float64(width), float64(height))
		dets = append(dets, track.Detection{Box: box, Class: class, Score: score})
	}
	return dets, nil
}

func encodeSnapshots(snapshots []track.Snapshot, width, height int) []float64 {
	out := make([]float64, 0, len(snapshots)*trackTupleSize)
	for _, s := range snapshots {
		cx, cy, w, h := geom.ToNormalized(s.Box, float64(width), float64(height))
		out = append(out, cx, cy, w, h, float64(s.Class), s.Score, float64(s.ID))
	}
	return out
}

func encodePropagated(propagated []flow.Propagated, width, height int) []float64 {
	out := make([]float64, 0, len(propagated)*trackTupleSize)
	for _, p := range propagated {
		cx, cy, w, h := geom.ToNormalized(p.Box, float64(width), float64(height))
		out = append(out, cx, cy, w, h, float64(p.Class), p.Score, float64(p.ID))
	}
	return out
}
