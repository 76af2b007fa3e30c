package optimizations

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestClipScenario(t *testing.T) {
	g := mat.NewDense(2, 1, []float64{3, 4})
	got := Clip(g, 1)
	if math.Abs(got.At(0, 0)-0.6) > 1e-12 || math.Abs(got.At(1, 0)-0.8) > 1e-12 {
		t.Fatalf("Clip([3,4], 1) = %v", mat.Formatted(got))
	}
	if g.At(0, 0) != 3 {
		t.Fatal("Clip modified its input")
	}
	// under the limit and disabled clipping leave g alone
	if c := Clip(g, 10); !mat.Equal(c, g) {
		t.Fatal("gradient under maxNorm was rescaled")
	}
	if c := Clip(g, 0); !mat.Equal(c, g) {
		t.Fatal("maxNorm 0 should disable clipping")
	}
}

func TestSGDStep(t *testing.T) {
	p := NewParam("w", mat.NewDense(2, 1, []float64{1, 1}))
	p.Accumulate(mat.NewDense(2, 1, []float64{3, 4}))
	frozen := NewParam("f", mat.NewDense(1, 1, []float64{2}))
	frozen.Frozen = true
	frozen.Grad.Set(0, 0, 5)

	opt := &SGD{LearningRate: 0.5, MaxNorm: 1}
	opt.Step([]*Param{p, frozen})

	if math.Abs(p.W.At(0, 0)-0.7) > 1e-12 || math.Abs(p.W.At(1, 0)-0.6) > 1e-12 {
		t.Fatalf("W = %v, want [0.7 0.6]", mat.Formatted(p.W))
	}
	if p.Grad.At(0, 0) != 0 || p.Grad.At(1, 0) != 0 {
		t.Fatal("grad not zeroed after step")
	}
	if frozen.W.At(0, 0) != 2 || frozen.Grad.At(0, 0) != 0 {
		t.Fatal("frozen param updated or grad left behind")
	}
}

func TestSGDGlobalClip(t *testing.T) {
	a := NewParam("a", mat.NewDense(1, 1, []float64{0}))
	b := NewParam("b", mat.NewDense(1, 1, []float64{0}))
	a.Grad.Set(0, 0, 3)
	b.Grad.Set(0, 0, 4)
	(&SGD{LearningRate: 1, MaxNorm: 1, GlobalClip: true}).Step([]*Param{a, b})
	if math.Abs(a.W.At(0, 0)+0.6) > 1e-12 || math.Abs(b.W.At(0, 0)+0.8) > 1e-12 {
		t.Fatalf("a=%v b=%v, want -0.6 -0.8", a.W.At(0, 0), b.W.At(0, 0))
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	// L = ||w - target||^2
	target := []float64{1, -2, 0.5}
	p := NewParam("w", mat.NewDense(3, 2, nil))
	opt := NewAdam(0.05, 0, 0.9, 0.999, 1e-8, 0)
	for step := 0; step < 500; step++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				p.Grad.Set(i, j, 2*(p.W.At(i, j)-target[i]))
			}
		}
		opt.Step([]*Param{p})
	}
	for i := 0; i < 3; i++ {
		if math.Abs(p.W.At(i, 0)-target[i]) > 5e-2 {
			t.Fatalf("w[%d] = %v, want %v", i, p.W.At(i, 0), target[i])
		}
	}
	if opt.T != 500 {
		t.Fatalf("T = %d, want 500", opt.T)
	}
}

func TestGradsFinite(t *testing.T) {
	p := NewParam("w", mat.NewDense(2, 2, nil))
	if !GradsFinite([]*Param{p}) {
		t.Fatal("zero grads reported non-finite")
	}
	p.Grad.Set(1, 1, math.Inf(1))
	if GradsFinite([]*Param{p}) {
		t.Fatal("Inf grad reported finite")
	}
	ZeroGrads([]*Param{p})
	if !GradsFinite([]*Param{p}) {
		t.Fatal("ZeroGrads left a non-finite value")
	}
}

func TestShareForGrads(t *testing.T) {
	p := NewParam("w", mat.NewDense(1, 2, []float64{1, 2}))
	q := p.ShareForGrads()
	q.Accumulate(mat.NewDense(1, 2, []float64{5, 5}))
	if p.Grad.At(0, 0) != 0 {
		t.Fatal("shared param wrote into the original grad")
	}
	p.W.Set(0, 0, 9)
	if q.W.At(0, 0) != 9 {
		t.Fatal("shared param does not see weight updates")
	}
}

func TestNewOptimizer(t *testing.T) {
	if _, err := NewOptimizer("sgd", 0.1, 5, false, 0.9, 0.999, 1e-8, 0); err != nil {
		t.Fatal(err)
	}
	o, err := NewOptimizer("adam", 0.1, 5, true, 0.9, 0.999, 1e-8, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if a, ok := o.(*Adam); !ok || !a.GlobalClip {
		t.Fatalf("adam optimizer = %#v", o)
	}
	if _, err := NewOptimizer("rmsprop", 0.1, 5, false, 0, 0, 0, 0); err == nil {
		t.Fatal("expected unknown optimizer error")
	}
}

func TestLRSchedule(t *testing.T) {
	if got := LRSchedule(0, 1, 10, 100); got != 0 {
		t.Fatalf("step 0 = %v", got)
	}
	if got := LRSchedule(5, 1, 10, 100); got != 0.5 {
		t.Fatalf("mid warmup = %v, want 0.5", got)
	}
	if got := LRSchedule(10, 1, 10, 100); got != 1 {
		t.Fatalf("end of warmup = %v, want 1", got)
	}
	if got := LRSchedule(60, 1, 10, 100); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("half decay = %v, want 0.5", got)
	}
	if got := LRSchedule(500, 1, 10, 100); math.Abs(got) > 1e-12 {
		t.Fatalf("after decay = %v, want 0", got)
	}
	if got := LRSchedule(500, 0.3, 0, 0); got != 0.3 {
		t.Fatalf("constant = %v", got)
	}
	var s Scheduled = &SGD{}
	s.SetLearningRate(0.2)
	if s.(*SGD).LearningRate != 0.2 {
		t.Fatal("SetLearningRate did not stick")
	}
}
