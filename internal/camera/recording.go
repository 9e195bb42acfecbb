package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/tiroq/fmcamera/internal/diaglog"
	"github.com/tiroq/fmcamera/internal/media"
	"github.com/tiroq/fmcamera/internal/platform"
	"github.com/tiroq/fmcamera/internal/statemachine"
)

// StartRecording begins writing the output file. A writer that is missing
// or past its pre-write state is rebuilt once; if it still cannot start the
// observer gets RecordingStarted(ErrWriterUnavailable).
func (c *Controller) StartRecording() error {
	if !c.configured("recording video") {
		return ErrNotConfigured
	}
	if c.IsRecording() {
		if c.sm.Is(statemachine.Finishing) {
			c.log.Println("camera: previous recording is still finishing")
			return ErrFinishing
		}
		return nil
	}

	err := c.beginWriting()
	if err != nil {
		c.logger.Event(diaglog.ComponentController, diaglog.EventRecordingRebuild, map[string]interface{}{
			"reason": err.Error(),
		})
		c.rebuildWriter()
		err = c.beginWriting()
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrWriterUnavailable, err)
		c.log.Printf("camera error: cannot start recording: %v", err)
		c.notifyStarted(err)
		return err
	}

	if err := c.sm.Transition(statemachine.Recording, "start recording"); err != nil {
		c.log.Printf("camera error: %v", err)
	}
	c.attachSinks()
	c.logger.Event(diaglog.ComponentController, diaglog.EventRecordingStart, map[string]interface{}{
		"file": c.OutputPath(),
	})
	c.notifyStarted(nil)
	return nil
}

// beginWriting starts the writer if it is still in its pre-write state
func (c *Controller) beginWriting() error {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return errors.New("no asset writer")
	}
	if st := w.Status(); st != platform.WriterUnknown {
		return fmt.Errorf("asset writer is %s", st)
	}
	if err := w.StartWriting(); err != nil {
		return fmt.Errorf("start writing: %w", err)
	}

	c.mu.Lock()
	c.recording = true
	c.anchored = false
	c.mu.Unlock()
	return nil
}

// rebuildWriter discards the writer and its inputs and recreates them
// against a fresh output file.
func (c *Controller) rebuildWriter() {
	c.mu.Lock()
	old := c.writer
	cfg := c.cfg
	c.writer, c.videoIn, c.audioIn = nil, nil, nil
	c.mu.Unlock()

	if old != nil && old.Status() == platform.WriterWriting {
		old.CancelWriting()
	}
	c.step(StepOutputFile, prepareOutputFile(cfg.OutputPath))
	c.step(StepAssetWriter, c.setupWriter(cfg.OutputPath))
	c.step(StepWriterInputs, c.setupWriterInputs(cfg))
	c.refreshCapabilities()
}

func (c *Controller) attachSinks() {
	c.mu.Lock()
	c.accepting = true
	c.mu.Unlock()
	if c.p.VideoOutput != nil {
		c.p.VideoOutput.SetSampleHandler(c.handleSample, c.rec)
	}
	if c.p.AudioOutput != nil {
		c.p.AudioOutput.SetSampleHandler(c.handleSample, c.rec)
	}
}

func (c *Controller) detachSinks() {
	if c.p.VideoOutput != nil {
		c.p.VideoOutput.SetSampleHandler(nil, nil)
	}
	if c.p.AudioOutput != nil {
		c.p.AudioOutput.SetSampleHandler(nil, nil)
	}
	c.mu.Lock()
	c.accepting = false
	c.mu.Unlock()
}

// handleSample forwards one sample to its writer input. Samples that arrive
// after the sinks were detached, or while the input is not ready, are
// dropped.
func (c *Controller) handleSample(s media.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.accepting || c.writer == nil {
		return
	}
	c.anchorLocked(s.PTS)

	in := c.videoIn
	if s.Type == media.MediaAudio {
		in = c.audioIn
	}
	if in == nil || !in.ReadyForMoreMediaData() {
		c.logger.Event(diaglog.ComponentController, diaglog.EventSampleDropped, map[string]interface{}{
			"type": s.Type.String(),
			"pts":  s.PTS.String(),
		})
		return
	}
	if !in.Append(s) && s.Type == media.MediaVideo {
		c.log.Println("camera error: failed writing video buffer")
		c.logger.Event(diaglog.ComponentController, diaglog.EventAppendFailed, map[string]interface{}{
			"pts": s.PTS.String(),
		})
	}
}

// anchorLocked starts the writer session at pts the first time it is called
// during a recording. It reports whether this call anchored the timeline.
func (c *Controller) anchorLocked(pts time.Duration) bool {
	if c.anchored || c.writer == nil {
		return false
	}
	c.writer.StartSession(pts)
	c.anchored = true
	c.logger.Event(diaglog.ComponentController, diaglog.EventTimelineAnchor, map[string]interface{}{
		"pts": pts.String(),
	})
	return true
}

// StopRecording detaches the sample sinks and finalizes the file
// asynchronously. It is a no-op when nothing is recording.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	recording := c.recording
	w := c.writer
	cfg := c.cfg
	c.mu.Unlock()
	if !recording || !c.sm.Is(statemachine.Recording) {
		return nil
	}

	c.detachSinks()
	if err := c.sm.Transition(statemachine.Finishing, "stop recording"); err != nil {
		c.log.Printf("camera error: %v", err)
	}
	c.logger.Event(diaglog.ComponentController, diaglog.EventRecordingStop, map[string]interface{}{
		"file": cfg.OutputPath,
	})

	path := cfg.OutputPath
	w.FinishWriting(func(err error) {
		c.main.Dispatch(func() { c.finalized(w, path, err) })
	})

	// The save is issued without waiting for finalize unless the caller
	// opted into SaveVideoAfterFinalize.
	if cfg.SaveVideoToLibrary && !cfg.SaveVideoAfterFinalize {
		c.saveVideo(path)
	}
	return nil
}

func (c *Controller) finalized(w platform.AssetWriter, path string, err error) {
	c.mu.Lock()
	current := c.writer == w
	if current {
		c.recording = false
	}
	cfg := c.cfg
	c.mu.Unlock()

	if current && c.sm.Is(statemachine.Finishing) {
		if terr := c.sm.Transition(statemachine.Ready, "recording finalized"); terr != nil {
			c.log.Printf("camera error: %v", terr)
		}
	}

	payload := map[string]interface{}{"file": path, "ok": err == nil}
	if err != nil {
		payload["error"] = err.Error()
		c.log.Printf("camera error: finalize recording: %v", err)
		path = ""
	}
	c.logger.Event(diaglog.ComponentController, diaglog.EventRecordingFinished, payload)
	c.notifyFinished(path, err)

	if err == nil && cfg.SaveVideoToLibrary && cfg.SaveVideoAfterFinalize {
		c.saveVideo(path)
	}
}

// saveVideo hands the recording to the library. A successful save notifies
// the video observer again with the path; a failed one with the error.
func (c *Controller) saveVideo(path string) {
	if c.p.Library == nil {
		c.log.Println("camera: no photo library, video not saved")
		return
	}
	c.p.Library.SaveVideo(path, func(ok bool, err error) {
		if err != nil {
			c.log.Printf("camera error: save video: %v", err)
		}
		c.logger.Event(diaglog.ComponentController, diaglog.EventSave, map[string]interface{}{
			"kind": "video",
			"file": path,
			"ok":   ok,
		})
		if ok {
			c.notifyFinished(path, nil)
		} else if err != nil {
			c.notifyFinished("", err)
		}
	})
}
