package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
	"github.com/manningwu07/seq2seq/store"
	"github.com/manningwu07/seq2seq/utils"
)

var (
	trainFlag  bool
	chatFlag   bool
	tuiFlag    bool
	askFlag    string
	exportFlag string
	histFlag   bool

	configPath  string
	corpusPath  string
	modelPath   string
	vectorsPath string
	dbPath      string
	logPath     string
	debugFlag   bool
)

func init() {
	flag.BoolVar(&trainFlag, "train", false, "Train a model on -corpus and save it to -model")
	flag.BoolVar(&chatFlag, "chat", false, "Chat with the model in -model on stdin/stdout")
	flag.BoolVar(&tuiFlag, "tui", false, "Chat with the model in -model in a terminal UI")
	flag.StringVar(&askFlag, "ask", "", "Answer a single question and exit")
	flag.BoolVar(&histFlag, "history", false, "Print the latest training run and recent chat messages stored in -db")
	flag.StringVar(&exportFlag, "export", "", "Export vocab.json and binary id shards of -corpus under this prefix")

	flag.StringVar(&configPath, "config", "", "JSON file overriding the default TrainingConfig")
	flag.StringVar(&corpusPath, "corpus", "data/corpus.json", "JSON array of {question, answer} pairs")
	flag.StringVar(&modelPath, "model", "models/chatbot.gob", "Model file")
	flag.StringVar(&vectorsPath, "vectors", "", "GloVe-style pretrained vectors (optional)")
	flag.StringVar(&dbPath, "db", "", "sqlite file for training history and chat transcripts (optional)")
	flag.StringVar(&logPath, "log", "training_log.csv", "Per-epoch CSV log written while training")
	flag.BoolVar(&debugFlag, "debug", false, "Verbose debug output")
}

func main() {
	flag.Parse()

	cfg := params.Default
	if configPath != "" {
		var err error
		if cfg, err = params.LoadConfig(configPath, params.Default); err != nil {
			fatal(err)
		}
	}
	if debugFlag {
		cfg.Debug = true
	}
	utils.DebugEnabled = cfg.Debug

	var history *store.History
	if dbPath != "" {
		h, err := store.Open(dbPath)
		if err != nil {
			fatal(err)
		}
		defer h.Close()
		history = h
	}

	switch {
	case histFlag:
		if history == nil {
			fatal(fmt.Errorf("-history needs -db"))
		}
		if err := printHistory(context.Background(), os.Stdout, history, 10); err != nil {
			fatal(err)
		}
	case exportFlag != "":
		if err := export(cfg, exportFlag); err != nil {
			fatal(err)
		}
	case trainFlag:
		if err := train(cfg, history); err != nil {
			fatal(err)
		}
	case chatFlag, tuiFlag, askFlag != "":
		m, err := seq2seq.Load(modelPath)
		if err != nil {
			fatal(err)
		}
		bot := seq2seq.NewChatbot(m)
		switch {
		case askFlag != "":
			fmt.Println(bot.Reply(askFlag))
		case tuiFlag:
			if err := runTUI(bot, history); err != nil {
				fatal(err)
			}
		default:
			ChatCLI(bot, history, os.Stdin, os.Stdout)
		}
	default:
		flag.Usage()
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func export(cfg params.TrainingConfig, prefix string) error {
	pairs, err := IO.LoadCorpus(corpusPath)
	if err != nil {
		return err
	}
	vocab, err := IO.BuildVocab(pairs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(prefix), 0755); err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(vocab, prefix+"-vocab.json"); err != nil {
		return err
	}
	fmt.Printf("Exported vocab (%d tokens)\n", vocab.Size())
	if err := IO.ExportSequencesBinary(vocab, pairs, cfg.MaxLen, prefix); err != nil {
		return err
	}
	fmt.Printf("Exported %d sequences to %s-000.bin\n", 2*len(pairs), prefix)
	return verifyExport(prefix, vocab, 2*len(pairs))
}

// verifyExport reads the exported files back and checks they match what
// was written.
func verifyExport(prefix string, vocab params.Vocabulary, sequences int) error {
	got, err := IO.ImportVocabJSON(prefix + "-vocab.json")
	if err != nil {
		return err
	}
	if got.Size() != vocab.Size() {
		return fmt.Errorf("export check: vocab has %d tokens on disk, %d in memory", got.Size(), vocab.Size())
	}
	seqs, err := IO.ReadSequencesBinary(prefix)
	if err != nil {
		return err
	}
	if len(seqs) != sequences {
		return fmt.Errorf("export check: read back %d sequences, wrote %d", len(seqs), sequences)
	}
	for i, seq := range seqs {
		for _, id := range seq {
			if id < 0 || id >= got.Size() {
				return fmt.Errorf("export check: sequence %d has id %d outside the vocab", i, id)
			}
		}
	}
	return nil
}

func train(cfg params.TrainingConfig, history *store.History) error {
	pairs, err := IO.LoadCorpus(corpusPath)
	if err != nil {
		return err
	}
	vocab, err := IO.BuildVocab(pairs)
	if err != nil {
		return err
	}
	examples, err := seq2seq.MakeExamples(vocab, pairs, cfg.MaxLen)
	if err != nil {
		return err
	}
	m, err := seq2seq.NewModel(cfg, vocab)
	if err != nil {
		return err
	}
	fmt.Printf("Train: pairs=%d vocab=%d D=%d H=%d attention=%s optimizer=%s\n",
		len(pairs), vocab.Size(), cfg.EmbedDim, cfg.HiddenSize, cfg.Attention, cfg.Optimizer)

	if vectorsPath != "" {
		vecs, err := IO.LoadPretrainedVectors(vectorsPath, cfg.EmbedDim, vocab)
		if err != nil {
			return err
		}
		n, err := m.Embedding.LoadPretrained(vocab, vecs, cfg.TrainableEmbeddings)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d pretrained vectors (trainable=%v)\n", n, cfg.TrainableEmbeddings)
	}

	opt, err := optimizations.NewOptimizer(cfg.Optimizer, cfg.LearningRate, cfg.MaxNorm, cfg.GlobalClip,
		cfg.AdamBeta1, cfg.AdamBeta2, cfg.AdamEps, cfg.WeightDecay)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var run int64
	if history != nil {
		if run, err = history.StartRun(ctx, cfg); err != nil {
			return err
		}
	}
	csvLog, err := newEpochLog(logPath)
	if err != nil {
		return err
	}
	defer csvLog.Close()

	if err := os.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return err
	}
	checkpoint := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_last_epoch.gob"

	hooks := seq2seq.Hooks{
		OnEpoch: func(s seq2seq.EpochStats) {
			fmt.Printf("Epoch %d - Loss: %.4f, Acc: %.4f, ValLoss: %.4f, ValAcc: %.4f, Skipped: %d, Time: %v\n",
				s.Epoch, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy, s.Skipped, s.Duration)
			if err := csvLog.write(s); err != nil {
				utils.Warnf("training log: %v", err)
			}
			if history != nil {
				if err := history.RecordEpoch(ctx, run, s); err != nil {
					utils.Warnf("history: %v", err)
				}
			}
		},
		Checkpoint: func(m *seq2seq.Model, epoch int) error {
			if err := seq2seq.Save(m, checkpoint); err != nil {
				return err
			}
			fmt.Printf("Saved checkpoint at epoch %d\n", epoch)
			return nil
		},
	}

	t1 := time.Now()
	hist, err := seq2seq.Train(m, examples, cfg, opt, hooks)
	if err != nil {
		return err
	}
	fmt.Printf("\nTime taken to train: %s\n", time.Since(t1))

	if err := seq2seq.Save(m, modelPath); err != nil {
		return err
	}
	vocabPath := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + "_vocab.json"
	if err := IO.ExportVocabJSON(vocab, vocabPath); err != nil {
		return err
	}
	fmt.Printf("Saved model to %s\n", modelPath)
	asciiPlot(os.Stdout, lossCurve(hist))
	return nil
}
