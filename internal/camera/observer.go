package camera

import "image"

// VideoObserver is notified about the recording lifecycle on the main queue
type VideoObserver interface {
	// RecordingStarted reports a started recording, or why it could not start
	RecordingStarted(err error)
	// RecordingFinished reports the output file, or an empty path and an error
	RecordingFinished(path string, err error)
}

// PhotoObserver receives the reduced photo on the main queue
type PhotoObserver interface {
	PhotoCaptured(img image.Image, data []byte)
}

// VideoObserverFuncs adapts plain functions to VideoObserver. Nil fields are
// ignored.
type VideoObserverFuncs struct {
	Started  func(err error)
	Finished func(path string, err error)
}

func (f VideoObserverFuncs) RecordingStarted(err error) {
	if f.Started != nil {
		f.Started(err)
	}
}

func (f VideoObserverFuncs) RecordingFinished(path string, err error) {
	if f.Finished != nil {
		f.Finished(path, err)
	}
}

// PhotoObserverFunc adapts a function to PhotoObserver
type PhotoObserverFunc func(img image.Image, data []byte)

func (f PhotoObserverFunc) PhotoCaptured(img image.Image, data []byte) {
	f(img, data)
}

// VideoObservers fans lifecycle events out to several observers in order
type VideoObservers []VideoObserver

func (vs VideoObservers) RecordingStarted(err error) {
	for _, v := range vs {
		v.RecordingStarted(err)
	}
}

func (vs VideoObservers) RecordingFinished(path string, err error) {
	for _, v := range vs {
		v.RecordingFinished(path, err)
	}
}

// PhotoObservers fans photos out to several observers in order
type PhotoObservers []PhotoObserver

func (ps PhotoObservers) PhotoCaptured(img image.Image, data []byte) {
	for _, p := range ps {
		p.PhotoCaptured(img, data)
	}
}
