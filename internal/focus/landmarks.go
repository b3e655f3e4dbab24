package focus

import (
	"math"
	"time"
)

// Face mesh landmark indices used for the eye aspect ratio. Each eye lists
// the outer corner, inner corner, then two upper/lower lid pairs.
var (
	LeftEye  = [6]int{362, 385, 387, 373, 380, 374}
	RightEye = [6]int{33, 133, 159, 145, 158, 153}
)

const (
	NoseTip        = 1
	LeftEyeCenter  = 33
	RightEyeCenter = 263
)

type Point struct {
	X float64
	Y float64
}

func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Features is the per-frame geometry the classifier decides on.
type Features struct {
	LeftEAR    float64 `json:"left_ear" yaml:"left_ear"`
	RightEAR   float64 `json:"right_ear" yaml:"right_ear"`
	HeadOffset float64 `json:"head_offset" yaml:"head_offset"`
}

func (f Features) AverageEAR() float64 {
	return (f.LeftEAR + f.RightEAR) / 2
}

// Frame is one detector result. A frame with neither landmarks nor features
// means no face was found.
type Frame struct {
	Timestamp time.Time
	Landmarks []Point
	Features  *Features
}

func (f Frame) HasFace() bool {
	return f.Features != nil || len(f.Landmarks) > 0
}

// Scorer turns detector output into Features. ok is false when the frame
// carries no usable face.
type Scorer interface {
	Score(frame Frame) (feat Features, ok bool)
}

// MeshScorer reads a 468-point face mesh. Precomputed features on the frame
// take precedence over landmarks.
type MeshScorer struct{}

func (MeshScorer) Score(frame Frame) (Features, bool) {
	if frame.Features != nil {
		return *frame.Features, true
	}
	lm := frame.Landmarks
	if len(lm) <= RightEyeCenter {
		return Features{}, false
	}
	left, ok := eyeAspectRatio(lm, LeftEye)
	if !ok {
		return Features{}, false
	}
	right, ok := eyeAspectRatio(lm, RightEye)
	if !ok {
		return Features{}, false
	}
	return Features{
		LeftEAR:    left,
		RightEAR:   right,
		HeadOffset: headOffset(lm),
	}, true
}

// eyeAspectRatio is (|p2-p3| + |p4-p5|) / (2|p0-p1|).
func eyeAspectRatio(lm []Point, eye [6]int) (float64, bool) {
	horizontal := lm[eye[0]].Dist(lm[eye[1]])
	if horizontal == 0 {
		return 0, false
	}
	v1 := lm[eye[2]].Dist(lm[eye[3]])
	v2 := lm[eye[4]].Dist(lm[eye[5]])
	return (v1 + v2) / (2 * horizontal), true
}

// headOffset is the horizontal distance of the nose tip from the midpoint
// of the eyes, in normalized image units.
func headOffset(lm []Point) float64 {
	mid := (lm[LeftEyeCenter].X + lm[RightEyeCenter].X) / 2
	return math.Abs(lm[NoseTip].X - mid)
}
