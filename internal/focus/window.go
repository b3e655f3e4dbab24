package focus

// Window is a fixed-capacity FIFO of the most recent samples.
type Window struct {
	items []float64
	size  int
	head  int
	count int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		items: make([]float64, size),
		size:  size,
	}
}

// Push appends v, evicting the oldest sample once the window is full.
func (w *Window) Push(v float64) {
	if w.count < w.size {
		w.count++
	}
	w.items[w.head] = v
	w.head = (w.head + 1) % w.size
}

func (w *Window) IsFull() bool {
	return w.count == w.size
}

func (w *Window) Len() int {
	return w.count
}

func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var total float64
	for _, v := range w.Items() {
		total += v
	}
	return total / float64(w.count)
}

// Items returns the samples oldest first.
func (w *Window) Items() []float64 {
	out := make([]float64, 0, w.count)
	start := (w.head - w.count + w.size) % w.size
	for i := 0; i < w.count; i++ {
		out = append(out, w.items[(start+i)%w.size])
	}
	return out
}
