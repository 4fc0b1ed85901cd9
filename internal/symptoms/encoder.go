package symptoms

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/config"
)

var ErrEncoderUnavailable = errors.New("semantic encoder unavailable")

// Encoder maps texts to dense embeddings.
type Encoder interface {
	Available() bool
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// AbsentEncoder is used when no encoder could be loaded. It contributes no
// tags and never fails the extraction.
type AbsentEncoder struct{}

func (AbsentEncoder) Available() bool { return false }

func (AbsentEncoder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, ErrEncoderUnavailable
}

func (AbsentEncoder) Close() error { return nil }

// OpenEncoder resolves the encoder variant once at startup. Any failure to
// load the runtime, model or tokenizer yields AbsentEncoder.
func OpenEncoder(cfg config.EncoderConfig, logger *zap.Logger) Encoder {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		logger.Info("semantic encoder not configured, using keyword and tf-idf sources only")
		return AbsentEncoder{}
	}
	enc, err := NewONNXEncoder(cfg, logger)
	if err != nil {
		logger.Warn("semantic encoder disabled", zap.Error(err))
		return AbsentEncoder{}
	}
	logger.Info("semantic encoder loaded", zap.String("model", cfg.ModelPath))
	return enc
}

// ONNXEncoder runs a transformer exported to ONNX and mean-pools its last
// hidden state over the attention mask.
type ONNXEncoder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer.Tokenizer
	maxSeqLen int
}

func NewONNXEncoder(cfg config.EncoderConfig, logger *zap.Logger) (*ONNXEncoder, error) {
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	if !ort.IsInitialized() {
		if cfg.OrtLibrary != "" {
			ort.SetSharedLibraryPath(cfg.OrtLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	appendCUDA := func() error {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return opts.AppendExecutionProviderCUDA(cuda)
	}
	if err := attachAccelerator(appendCUDA, cfg.RequireGPU, logger); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask"}, []string{"last_hidden_state"}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	maxSeqLen := cfg.MaxSeqLen
	if maxSeqLen <= 0 {
		maxSeqLen = 128
	}
	return &ONNXEncoder{session: session, tokenizer: tk, maxSeqLen: maxSeqLen}, nil
}

// attachAccelerator adds the GPU provider. Without one the encoder is refused
// when requireGPU is set and runs on CPU otherwise.
func attachAccelerator(appendProvider func() error, requireGPU bool, logger *zap.Logger) error {
	err := appendProvider()
	if err == nil {
		return nil
	}
	if requireGPU {
		return fmt.Errorf("%w: no gpu provider: %v", ErrEncoderUnavailable, err)
	}
	logger.Info("cuda provider unavailable, encoder runs on cpu", zap.Error(err))
	return nil
}

func (e *ONNXEncoder) Available() bool { return true }

func (e *ONNXEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.encodeOne(text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *ONNXEncoder) encodeOne(text string) ([]float32, error) {
	enc, err := e.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	n := min(len(enc.Ids), e.maxSeqLen)
	if n == 0 {
		return nil, fmt.Errorf("tokenize: empty encoding")
	}

	ids := make([]int64, n)
	mask := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		mask[i] = 1
		if i < len(enc.AttentionMask) {
			mask[i] = int64(enc.AttentionMask[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, err
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, err
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run encoder: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected encoder output %T", outputs[0])
	}
	dims := hidden.GetShape()
	if len(dims) != 3 || dims[1] != int64(n) {
		return nil, fmt.Errorf("unexpected encoder output shape %v", dims)
	}
	return meanPool(hidden.GetData(), mask, int(dims[2])), nil
}

func (e *ONNXEncoder) Close() error {
	return e.session.Destroy()
}

// meanPool averages the token rows of a [seq, dim] matrix whose mask is set.
func meanPool(data []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := data[t*dim : (t+1)*dim]
		for j, v := range row {
			out[j] += v
		}
		count++
	}
	if count > 0 {
		for j := range out {
			out[j] /= count
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
