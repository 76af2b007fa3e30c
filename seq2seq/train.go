package seq2seq

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
)

// Example is one encoded (question, answer) pair.
type Example struct {
	Src, Tgt []int
}

// MakeExamples encodes every pair with the codec at maxLen.
func MakeExamples(v params.Vocabulary, pairs []IO.Pair, maxLen int) ([]Example, error) {
	out := make([]Example, 0, len(pairs))
	for i, p := range pairs {
		src, err := IO.Encode(v, p.Question, maxLen)
		if err != nil {
			return nil, fmt.Errorf("pair %d question: %w", i, err)
		}
		tgt, err := IO.Encode(v, p.Answer, maxLen)
		if err != nil {
			return nil, fmt.Errorf("pair %d answer: %w", i, err)
		}
		out = append(out, Example{Src: src, Tgt: tgt})
	}
	return out, nil
}

// SplitValidation shuffles a copy of exs and holds out frac of it.
// A positive frac always holds out at least one example when there are two
// or more.
func SplitValidation(exs []Example, frac float64, rng *rand.Rand) (train, val []Example) {
	all := append([]Example(nil), exs...)
	if frac <= 0 || len(all) < 2 {
		return all, nil
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	n := int(frac * float64(len(all)))
	if n == 0 {
		n = 1
	}
	if n >= len(all) {
		n = len(all) - 1
	}
	return all[n:], all[:n]
}

// passResult is what one teacher-forced pass over an example produced.
type passResult struct {
	Loss    float64 // summed over scored steps
	Scored  int
	Correct int
}

func (m *Model) lossFn() func(*mat.Dense, int) (float64, *mat.Dense) {
	if m.Config.Loss == "mse" {
		return utils.MSEWithIndex
	}
	return utils.CrossEntropyWithIndex
}

// forwardBackward runs the encoder and a teacher-forced decoder over ex.
// Step t feeds Tgt[t] and is scored against Tgt[t+1]; steps whose target
// is PAD are not scored. With backward set it accumulates gradients into
// every Param, unless the loss is non-finite, in which case it returns
// ErrNumericalInstability and touches no gradient.
func (m *Model) forwardBackward(ex Example, backward bool) (passResult, error) {
	var res passResult
	pad := m.padID()

	last := -1
	for t := 0; t+1 < len(ex.Tgt); t++ {
		if ex.Tgt[t+1] != pad {
			last = t
		}
	}
	if last < 0 {
		return res, nil
	}

	enc, err := m.Encoder.Forward(ex.Src, pad)
	if err != nil {
		return res, err
	}

	lossFn := m.lossFn()
	caches := make([]*DecoderCache, last+1)
	dLogits := make([]*mat.Dense, last+1)
	state := enc.Final
	for t := 0; t <= last; t++ {
		logits, next, cache, err := m.Decoder.Step(ex.Tgt[t], state, enc)
		if err != nil {
			return res, fmt.Errorf("decoder step %d: %w", t, err)
		}
		caches[t] = cache
		state = next

		gold := ex.Tgt[t+1]
		if gold == pad {
			continue
		}
		loss, grad := lossFn(logits, gold)
		res.Loss += loss
		res.Scored++
		if utils.ArgMax(logits) == gold {
			res.Correct++
		}
		dLogits[t] = grad
	}
	if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) {
		return res, fmt.Errorf("loss %v: %w", res.Loss, utils.ErrNumericalInstability)
	}
	if !backward {
		return res, nil
	}

	H := m.Config.HiddenSize
	dH := mat.NewDense(H, 1, nil)
	dC := mat.NewDense(H, 1, nil)
	dStates := make([]*mat.Dense, len(ex.Src))
	for t := last; t >= 0; t-- {
		dH, dC = m.Decoder.StepBackward(caches[t], dLogits[t], dH, dC, dStates)
	}
	m.Encoder.Backward(enc, dStates, dH, dC)
	return res, nil
}

// EpochStats summarizes one pass over the training set.
type EpochStats struct {
	Epoch       int
	Loss        float64 // mean over all scored steps
	Accuracy    float64 // teacher-forced next-token accuracy
	Scored      int
	Skipped     int // examples dropped for a non-finite loss
	Dropped     int // optimizer steps dropped for non-finite gradients
	ValLoss     float64
	ValAccuracy float64
	Duration    time.Duration
}

// Hooks are optional callbacks fired by Train.
type Hooks struct {
	OnEpoch    func(EpochStats)
	OnWarning  func(error)
	Checkpoint func(m *Model, epoch int) error
}

func (h Hooks) warn(err error) {
	utils.Warnf("%v", err)
	if h.OnWarning != nil {
		h.OnWarning(err)
	}
}

// Train runs up to cfg.MaxEpochs epochs of mini-batch training. Each
// epoch visits the examples in a seeded random order; the optimizer steps
// once per cfg.BatchSize examples. cfg.ValFrac of the examples are held out
// and reported through Evaluate. Training stops early when the monitored
// loss stalls for cfg.Patience epochs or the training loss drops below
// cfg.Epsilon.
func Train(m *Model, examples []Example, cfg params.TrainingConfig, opt optimizations.Optimizer, hooks Hooks) ([]EpochStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("train: no examples: %w", utils.ErrInvalidInput)
	}
	rng := utils.NewRand(cfg.Seed ^ 0x5eed)
	train, val := SplitValidation(examples, cfg.ValFrac, rng)

	ps := m.Parameters()
	optimizations.ZeroGrads(ps)

	workers := cfg.Workers
	if workers > cfg.BatchSize {
		workers = cfg.BatchSize
	}
	var clones []*Model
	if workers > 1 {
		clones = make([]*Model, workers)
		for i := range clones {
			clones[i] = m.CloneForGrads()
		}
	}

	var history []EpochStats
	best := math.Inf(1)
	noImprovementCount := 0
	optSteps := 0

	for e := 0; e < cfg.MaxEpochs; e++ {
		start := time.Now()
		stats := EpochStats{Epoch: e + 1}
		var totalLoss float64
		var correct int

		order := rng.Perm(len(train))
		for b := 0; b < len(order); b += cfg.BatchSize {
			end := min(b+cfg.BatchSize, len(order))
			batch := make([]Example, 0, end-b)
			for _, idx := range order[b:end] {
				batch = append(batch, train[idx])
			}

			results, errs := m.batchGrads(batch, clones)
			for i, err := range errs {
				if err == nil {
					totalLoss += results[i].Loss
					stats.Scored += results[i].Scored
					correct += results[i].Correct
					continue
				}
				if errors.Is(err, utils.ErrNumericalInstability) {
					stats.Skipped++
					hooks.warn(fmt.Errorf("epoch %d: skipped example: %w", e+1, err))
					continue
				}
				return history, err
			}

			if !optimizations.GradsFinite(ps) {
				optimizations.ZeroGrads(ps)
				stats.Dropped++
				hooks.warn(fmt.Errorf("epoch %d: dropped update with non-finite gradients: %w", e+1, utils.ErrNumericalInstability))
				continue
			}
			optSteps++
			if sch, ok := opt.(optimizations.Scheduled); ok && (cfg.WarmupSteps > 0 || cfg.DecaySteps > 0) {
				sch.SetLearningRate(optimizations.LRSchedule(optSteps, cfg.LearningRate, cfg.WarmupSteps, cfg.DecaySteps))
			}
			opt.Step(ps)
			if cfg.Debug && cfg.DebugEvery > 0 && optSteps%cfg.DebugEvery == 0 {
				utils.Debugf("step %d: encoder.f.W norm=%.6g output.W norm=%.6g",
					optSteps,
					utils.MatrixNorm(m.Encoder.Cell.Forget.W.W),
					utils.MatrixNorm(m.Decoder.Out.W.W))
			}
		}

		if stats.Scored > 0 {
			stats.Loss = totalLoss / float64(stats.Scored)
			stats.Accuracy = float64(correct) / float64(stats.Scored)
		}
		monitored := stats.Loss
		if len(val) > 0 {
			ev, err := Evaluate(m, val)
			if err != nil {
				return history, err
			}
			stats.ValLoss, stats.ValAccuracy = ev.Loss, ev.Accuracy
			monitored = ev.Loss
		}
		stats.Duration = time.Since(start)
		history = append(history, stats)
		if hooks.OnEpoch != nil {
			hooks.OnEpoch(stats)
		}

		if cfg.SaveEveryEpochs > 0 && (e+1)%cfg.SaveEveryEpochs == 0 && hooks.Checkpoint != nil {
			if err := hooks.Checkpoint(m, e+1); err != nil {
				hooks.warn(fmt.Errorf("epoch %d: checkpoint: %w", e+1, err))
			}
		}

		// --- Early stopping ---
		if monitored < best-cfg.ImprovementThreshold {
			best = monitored
			noImprovementCount = 0
		} else {
			noImprovementCount++
		}
		if cfg.Patience > 0 && noImprovementCount >= cfg.Patience {
			utils.Debugf("stopping after epoch %d: no improvement for %d epochs", e+1, noImprovementCount)
			break
		}
		if stats.Scored > 0 && stats.Loss < cfg.Epsilon {
			utils.Debugf("stopping after epoch %d: loss %.6g below epsilon", e+1, stats.Loss)
			break
		}
	}
	return history, nil
}

// batchGrads accumulates the gradients of every example in batch into m's
// Params. With clones, examples are spread round-robin over the clones and
// their private gradients are summed into m in clone order.
func (m *Model) batchGrads(batch []Example, clones []*Model) ([]passResult, []error) {
	results := make([]passResult, len(batch))
	errs := make([]error, len(batch))
	if len(clones) == 0 {
		for i, ex := range batch {
			results[i], errs[i] = m.forwardBackward(ex, true)
		}
		return results, errs
	}

	var wg sync.WaitGroup
	for w, c := range clones {
		wg.Add(1)
		go func(w int, c *Model) {
			defer wg.Done()
			for i := w; i < len(batch); i += len(clones) {
				results[i], errs[i] = c.forwardBackward(batch[i], true)
			}
		}(w, c)
	}
	wg.Wait()

	ps := m.Parameters()
	for _, c := range clones {
		for i, p := range c.Parameters() {
			ps[i].Accumulate(p.Grad)
			p.ZeroGrad()
		}
	}
	return results, errs
}

// EvalResult is the teacher-forced loss and token accuracy on a set.
type EvalResult struct {
	Loss     float64
	Accuracy float64
	Scored   int
	Skipped  int
}

// Evaluate scores exs without touching any gradient.
func Evaluate(m *Model, exs []Example) (EvalResult, error) {
	var r EvalResult
	var total float64
	var correct int
	for _, ex := range exs {
		res, err := m.forwardBackward(ex, false)
		if err != nil {
			if errors.Is(err, utils.ErrNumericalInstability) {
				r.Skipped++
				continue
			}
			return r, err
		}
		total += res.Loss
		r.Scored += res.Scored
		correct += res.Correct
	}
	if r.Scored > 0 {
		r.Loss = total / float64(r.Scored)
		r.Accuracy = float64(correct) / float64(r.Scored)
	}
	return r, nil
}
