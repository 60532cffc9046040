package recognize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEngine runs a token-classification NER model through onnxruntime.
// The bundle directory holds model.onnx, label_map.json and
// tokenizer/vocab.txt; labels use the BIO scheme.
type ONNXEngine struct {
	session   *ort.AdvancedSession
	tokenizer *wordPieceTokenizer
	labels    []string
	seqLen    int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

// NewONNX initializes the ONNX session and tokenizer from a bundle directory.
func NewONNX(bundleDir string, seqLen int) (*ONNXEngine, error) {
	if bundleDir == "" {
		return nil, errors.New("bundleDir is empty")
	}
	if seqLen <= 0 {
		seqLen = 256
	}

	libPath := resolveSharedLibraryPath(bundleDir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or place it in the bundle")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(bundleDir, "model.onnx")
	labelsPath := filepath.Join(bundleDir, "label_map.json")
	vocabPath := filepath.Join(bundleDir, "tokenizer", "vocab.txt")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	labels, err := loadLabels(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	tokenizer, err := loadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	outputShape := ort.NewShape(1, int64(seqLen), int64(len(labels)))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEngine{
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		seqLen:        seqLen,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// Analyze tokenizes the text, runs the model and merges BIO token labels
// into entity spans.
func (e *ONNXEngine) Analyze(ctx context.Context, text string) ([]Span, error) {
	if e == nil || e.session == nil {
		return nil, errors.New("onnx engine not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs, attn, offsets := e.tokenizer.encodeWithOffsets(text, e.seqLen)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDs.GetData(), inputIDs)
	copy(e.attentionMask.GetData(), attn)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := e.output.GetData()
	numLabels := len(e.labels)
	if len(logits) == 0 || numLabels == 0 {
		return nil, nil
	}

	labels := make([]string, len(offsets))
	for i := range offsets {
		base := i * numLabels
		if base >= len(logits) {
			break
		}
		best := 0
		bestScore := float32(-math.MaxFloat32)
		for j := 0; j < numLabels && base+j < len(logits); j++ {
			if logits[base+j] > bestScore {
				best = j
				bestScore = logits[base+j]
			}
		}
		labels[i] = e.labels[best]
	}

	return spansFromTokenLabels(labels, offsets), nil
}

// Destroy releases the ONNX session and tensors.
func (e *ONNXEngine) Destroy() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputIDs != nil {
		e.inputIDs.Destroy()
	}
	if e.attentionMask != nil {
		e.attentionMask.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

// spansFromTokenLabels merges per-token BIO labels into contiguous spans.
func spansFromTokenLabels(labels []string, offsets []tokenOffset) []Span {
	if len(labels) == 0 || len(offsets) == 0 {
		return nil
	}

	var spans []Span
	var cur *Span

	for i, lbl := range labels {
		if i >= len(offsets) {
			break
		}
		offset := offsets[i]
		if offset.Start < 0 || offset.End <= offset.Start {
			continue
		}
		prefix, typ := splitBIOLabel(lbl)
		if typ == "" {
			if cur != nil {
				spans = append(spans, *cur)
				cur = nil
			}
			continue
		}
		if prefix == "B" || cur == nil || !strings.EqualFold(cur.Type, typ) {
			if cur != nil {
				spans = append(spans, *cur)
			}
			cur = &Span{Start: offset.Start, End: offset.End, Type: typ, Source: "ner"}
			continue
		}
		if offset.End > cur.End {
			cur.End = offset.End
		}
	}
	if cur != nil {
		spans = append(spans, *cur)
	}
	return mergeSpans(spans)
}

func splitBIOLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" || strings.EqualFold(lbl, "O") {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return strings.ToUpper(parts[0]), parts[1]
}

// mergeSpans joins overlapping or adjacent spans of the same type.
func mergeSpans(in []Span) []Span {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})
	out := make([]Span, 0, len(in))
	cur := in[0]
	for _, s := range in[1:] {
		if s.Start <= cur.End && strings.EqualFold(s.Type, cur.Type) {
			if s.End > cur.End {
				cur.End = s.End
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	out = append(out, cur)
	return out
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// label_map.json is either {"0": "O", "1": "B-PERSON", ...} or a plain list.
	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err == nil && len(asMap) > 0 {
		labels := make([]string, len(asMap))
		for k, v := range asMap {
			var idx int
			if _, err := fmt.Sscanf(k, "%d", &idx); err != nil || idx < 0 || idx >= len(labels) {
				return nil, fmt.Errorf("label_map.json has non-contiguous key %q", k)
			}
			labels[idx] = v
		}
		return labels, nil
	}

	var asList []string
	if err := json.Unmarshal(data, &asList); err != nil {
		return nil, fmt.Errorf("decode label map: %w", err)
	}
	return asList, nil
}

func resolveSharedLibraryPath(bundleDir string) string {
	if p := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); p != "" {
		return p
	}
	name := "libonnxruntime.so"
	switch runtime.GOOS {
	case "darwin":
		name = "libonnxruntime.dylib"
	case "windows":
		name = "onnxruntime.dll"
	}
	candidate := filepath.Join(bundleDir, "lib", name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
