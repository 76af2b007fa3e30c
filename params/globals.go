package params

// Vocabulary is the bidirectional token <-> id table. Built once from the
// corpus and read-only afterwards.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// Size is the number of ids, specials included.
func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Special tokens kept at the start of the vocab, in id order.
const (
	PadToken = "<pad>"
	SOSToken = "<sos>"
	EOSToken = "<eos>"
	OOVToken = "<oov>"
)

var Specials = []string{PadToken, SOSToken, EOSToken, OOVToken}

// Fallback is what the chat boundary answers when generation fails.
const Fallback = "Sorry, I couldn't come up with an answer to that."

type TrainingConfig struct {
	// Model shape
	EmbedDim   int     // embedding width D
	HiddenSize int     // LSTM hidden size H (encoder and decoder)
	MaxLen     int     // fixed sequence length for the codec
	Attention  string  // "dot" (scaled dot-product) or "additive"
	ClampLimit float64 // pre-activation clamp for sigmoid/tanh (<=0 disables)

	// Optimization
	Optimizer    string  // "sgd" or "adam"
	LearningRate float64
	MaxNorm      float64 // gradient-norm clip (<=0 disables)
	GlobalClip   bool    // clip all grads by their joint norm instead of per tensor
	AdamBeta1    float64 // default 0.9
	AdamBeta2    float64 // default 0.999
	AdamEps      float64 // default 1e-8
	WeightDecay  float64 // AdamW-style; 0 disables
	Loss         string  // "xent" or "mse"
	WarmupSteps  int     // linear warmup steps (0 disables)
	DecaySteps   int     // cosine decay steps after warmup (0 disables)

	// Schedule
	MaxEpochs       int     // maximum number of epochs
	Patience        int     // early stopping patience (0 disables)
	Epsilon         float64 // stop if loss < epsilon
	BatchSize       int     // examples per optimizer step
	Workers         int     // goroutines computing per-sequence grads (<=1 = sequential)
	ValFrac         float64 // fraction of pairs held out for evaluation
	SaveEveryEpochs int     // checkpoint every N epochs (0 disables)

	// ImprovementThreshold is how much the monitored loss must drop to
	// reset the patience counter.
	ImprovementThreshold float64

	// Embeddings
	TrainableEmbeddings bool // pretrained tables are frozen unless set

	Seed       uint64
	Debug      bool // enable periodic debug logs
	DebugEvery int  // print every N optimizer steps
}

// Default mirrors the hyperparameters of the small reference chatbot.
// Copy it and override; nothing mutates it.
var Default = TrainingConfig{
	EmbedDim:   64,
	HiddenSize: 128,
	MaxLen:     20,
	Attention:  "dot",
	ClampLimit: 30,

	Optimizer:    "sgd",
	LearningRate: 0.01,
	MaxNorm:      5.0,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,
	Loss:         "xent",

	MaxEpochs:       1000,
	Patience:        0,
	Epsilon:         1e-4,
	BatchSize:       2,
	Workers:         1,
	ValFrac:         0,
	SaveEveryEpochs: 100,

	ImprovementThreshold: 1e-6,

	TrainableEmbeddings: true,

	Seed:       42,
	Debug:      false,
	DebugEvery: 100,
}
