package optimizations

import "math"

// LRSchedule is linear warmup to peak over warmup steps, then cosine decay
// to 0 over decay steps. Zero warmup and decay give a constant peak.
func LRSchedule(step int, peak float64, warmup, decay int) float64 {
	if step <= 0 {
		return 0
	}
	if warmup > 0 && step < warmup {
		return peak * float64(step) / float64(warmup)
	}
	if decay > 0 {
		x := float64(step-warmup) / float64(decay)
		if x > 1 {
			x = 1
		} else if x < 0 {
			x = 0
		}
		return peak * 0.5 * (1 + math.Cos(math.Pi*x))
	}
	return peak
}

// Scheduled is an Optimizer whose learning rate can change between steps.
type Scheduled interface {
	Optimizer
	SetLearningRate(lr float64)
}

func (o *SGD) SetLearningRate(lr float64)  { o.LearningRate = lr }
func (a *Adam) SetLearningRate(lr float64) { a.LearningRate = lr }
