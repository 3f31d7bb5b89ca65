package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// Runtime is one resident inference context. Generate is CPU-bound local
// computation; ctx carries the wall-clock generation budget. Close releases
// the weights and must complete before the next Runtime may load.
type Runtime interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Close() error
}

// Loader constructs a Runtime from a resolved artifact path. The
// orchestrator depends on this indirection so tests can inject fakes.
type Loader func(path string) (Runtime, error)

// Byte-level vocabulary: three reserved ids then the 256 byte values.
const (
	tokenPad  = 0
	tokenBOS  = 1
	tokenEOS  = 2
	byteBase  = 3
	vocabSize = byteBase + 256
)

// ONNXRuntime wraps a memory-mapped onnxruntime session for greedy
// autoregressive decoding. Exactly one consumer uses it at a time; the
// mutex only guards Close racing a Generate in flight.
type ONNXRuntime struct {
	session *ort.AdvancedSession
	seqLen  int
	log     *logrus.Logger

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	logits        *ort.Tensor[float32]

	mu     sync.Mutex
	closed bool
}

// LoadONNXRuntime initializes the shared onnxruntime library once per
// process and constructs a session with preallocated tensors. Session
// creation memory-maps the weights; pages fault in on demand.
func LoadONNXRuntime(path string, seqLen int, log *logrus.Logger) (Runtime, error) {
	if seqLen <= 0 {
		seqLen = 1024
	}

	if !ort.IsInitialized() {
		libPath := resolveSharedLibraryPath(filepath.Dir(path))
		if libPath == "" {
			return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(vocabSize)))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate logits tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{logits},
		nil,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		logits.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.WithFields(logrus.Fields{"path": path, "seq_len": seqLen}).Info("Model runtime loaded")
	return &ONNXRuntime{
		session:       session,
		seqLen:        seqLen,
		log:           log,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		logits:        logits,
	}, nil
}

// Generate greedily decodes up to maxTokens continuation tokens. The
// context is checked between decode steps so a budget expiry or
// cancellation stops computation promptly.
func (r *ONNXRuntime) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("runtime already closed")
	}

	ids := encode(prompt, r.seqLen-maxTokens)
	var generated []int64

	for step := 0; step < maxTokens; step++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("generation interrupted after %d tokens: %w", step, err)
		}

		seq := append(append([]int64{}, ids...), generated...)
		if len(seq) > r.seqLen {
			seq = seq[len(seq)-r.seqLen:]
		}
		fillTensors(r.inputIDs.GetData(), r.attentionMask.GetData(), seq)

		if err := r.session.Run(); err != nil {
			return "", fmt.Errorf("onnx run at step %d: %w", step, err)
		}

		next := argmaxAt(r.logits.GetData(), len(seq)-1)
		if next == tokenEOS {
			break
		}
		generated = append(generated, next)
	}

	return decode(generated), nil
}

// Close destroys the session and its tensors, releasing the mapped weights.
func (r *ONNXRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.session.Destroy()
	r.inputIDs.Destroy()
	r.attentionMask.Destroy()
	r.logits.Destroy()
	r.log.Info("Model runtime released")
	return nil
}

// encode maps UTF-8 bytes onto the byte-level vocabulary, truncating to
// maxLen with the BOS marker preserved.
func encode(text string, maxLen int) []int64 {
	ids := make([]int64, 0, len(text)+1)
	ids = append(ids, tokenBOS)
	for _, b := range []byte(text) {
		ids = append(ids, int64(byteBase)+int64(b))
	}
	if maxLen > 0 && len(ids) > maxLen {
		ids = append([]int64{tokenBOS}, ids[len(ids)-maxLen+1:]...)
	}
	return ids
}

func decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id >= byteBase && id < byteBase+256 {
			b.WriteByte(byte(id - byteBase))
		}
	}
	return b.String()
}

func fillTensors(ids, mask []int64, seq []int64) {
	for i := range ids {
		if i < len(seq) {
			ids[i] = seq[i]
			mask[i] = 1
		} else {
			ids[i] = tokenPad
			mask[i] = 0
		}
	}
}

// argmaxAt returns the highest-logit token at one sequence position.
func argmaxAt(logits []float32, position int) int64 {
	offset := position * vocabSize
	if offset < 0 || offset+vocabSize > len(logits) {
		return tokenEOS
	}
	best := int64(0)
	bestVal := logits[offset]
	for i := 1; i < vocabSize; i++ {
		if logits[offset+i] > bestVal {
			bestVal = logits[offset+i]
			best = int64(i)
		}
	}
	return best
}

// resolveSharedLibraryPath locates the platform onnxruntime library. The
// environment variable wins; otherwise common names and locations are
// probed, starting next to the artifact.
func resolveSharedLibraryPath(artifactDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		artifactDir,
		filepath.Join(artifactDir, "lib"),
		".",
		"/usr/local/lib",
		"/usr/lib",
		"/opt/homebrew/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
