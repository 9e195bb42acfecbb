package media

// DeviceOrientation is the physical orientation of the host device
type DeviceOrientation string

const (
	DeviceUnknown            DeviceOrientation = "unknown"
	DevicePortrait           DeviceOrientation = "portrait"
	DevicePortraitUpsideDown DeviceOrientation = "portrait-upside-down"
	DeviceLandscapeLeft      DeviceOrientation = "landscape-left"
	DeviceLandscapeRight     DeviceOrientation = "landscape-right"
	DeviceFaceUp             DeviceOrientation = "face-up"
	DeviceFaceDown           DeviceOrientation = "face-down"
)

// ImageOrientation describes how stored pixels must be transformed to be
// displayed upright
type ImageOrientation int

const (
	OrientationUp ImageOrientation = iota
	OrientationDown
	OrientationLeft
	OrientationRight
	OrientationUpMirrored
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRightMirrored
)

var orientationNames = [...]string{
	"up", "down", "left", "right",
	"up-mirrored", "down-mirrored", "left-mirrored", "right-mirrored",
}

func (o ImageOrientation) String() string {
	if o < 0 || int(o) >= len(orientationNames) {
		return "invalid"
	}
	return orientationNames[o]
}

// Mirrored reports whether o includes a horizontal flip
func (o ImageOrientation) Mirrored() bool {
	return o >= OrientationUpMirrored
}

// Mirror toggles the horizontal flip component of o
func (o ImageOrientation) Mirror() ImageOrientation {
	switch o {
	case OrientationUp:
		return OrientationUpMirrored
	case OrientationDown:
		return OrientationDownMirrored
	case OrientationLeft:
		return OrientationLeftMirrored
	case OrientationRight:
		return OrientationRightMirrored
	case OrientationUpMirrored:
		return OrientationUp
	case OrientationDownMirrored:
		return OrientationDown
	case OrientationLeftMirrored:
		return OrientationLeft
	case OrientationRightMirrored:
		return OrientationRight
	}
	return o
}

// VideoRotation returns the clockwise rotation in degrees the encoder track
// should carry for the given device orientation.
func VideoRotation(o DeviceOrientation) int {
	switch o {
	case DevicePortrait:
		return 90
	case DevicePortraitUpsideDown:
		return -90
	case DeviceLandscapeLeft:
		return 0
	case DeviceLandscapeRight:
		return 180
	default:
		return 90
	}
}
