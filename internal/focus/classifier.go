// Package focus turns per-frame face geometry into a debounced stream of
// confirmed focused/unfocused intervals.
package focus

const (
	DefaultEARThreshold        = 0.21
	DefaultHeadOffsetThreshold = 0.08
	DefaultWindowSize          = 5
)

type Thresholds struct {
	EAR        float64
	HeadOffset float64
	WindowSize int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EAR:        DefaultEARThreshold,
		HeadOffset: DefaultHeadOffsetThreshold,
		WindowSize: DefaultWindowSize,
	}
}

// Classifier smooths the eye aspect ratio over a short window and combines it
// with head orientation. One classifier lives for exactly one session.
type Classifier struct {
	scorer     Scorer
	thresholds Thresholds
	window     *Window
	last       bool
}

func NewClassifier(scorer Scorer, th Thresholds) *Classifier {
	if scorer == nil {
		scorer = MeshScorer{}
	}
	return &Classifier{
		scorer:     scorer,
		thresholds: th,
		window:     NewWindow(th.WindowSize),
		last:       true,
	}
}

// Classify reports whether the user is focused in this frame. observed is
// false when no face was found; the window is left untouched and the
// previous result is returned.
func (c *Classifier) Classify(frame Frame) (focused bool, observed bool) {
	feat, ok := c.scorer.Score(frame)
	if !ok {
		return c.last, false
	}
	c.window.Push(feat.AverageEAR())

	// Optimistic until the window fills, so detector startup does not
	// produce a burst of unfocused readings.
	if !c.window.IsFull() {
		c.last = true
		return true, true
	}

	eyesOpen := c.window.Mean() > c.thresholds.EAR
	lookingForward := feat.HeadOffset < c.thresholds.HeadOffset
	c.last = eyesOpen && lookingForward
	return c.last, true
}
