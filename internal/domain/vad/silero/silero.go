package silero

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"vad-server-go/internal/domain/vad"
	"vad-server-go/internal/domain/vad/inter"
	platformerrors "vad-server-go/internal/platform/errors"
)

const (
	// contextSamples is the left context the Silero streaming models
	// expect prepended to every window at 16 kHz.
	contextSamples = 64

	// stateSize is the flattened hidden state, shape [2, 1, 128].
	stateSize = 2 * 1 * 128
)

// ortLibraryPathEnv overrides the ONNX Runtime shared library location
// when it is not on the default search path.
const ortLibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ortInitOnce initializes the ONNX Runtime environment exactly once; the
// error is kept so later constructors report the failure instead of
// running against an uninitialized environment.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func init() {
	vad.Register("silero", func(cfg inter.DetectorConfig) (inter.Detector, error) {
		return New(cfg)
	})
}

// Detector runs Silero VAD inference via ONNX Runtime. Each detector owns
// its session, tensors and left-context buffer; nothing is shared between
// sessions. Not safe for concurrent use.
type Detector struct {
	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, window+64]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // [1]
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]

	context   []float32
	window    int
	threshold float32
	lastProb  float32
}

// New loads the model at cfg.ModelPath and allocates the inference
// tensors. The input tensor is sized window+context so the configured
// frame duration (20 or 32 ms) carries through unchanged.
func New(cfg inter.DetectorConfig) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, platformerrors.New(platformerrors.KindModel, "load", "model path not configured")
	}
	if cfg.FrameSamples <= 0 {
		return nil, platformerrors.New(platformerrors.KindModel, "load", "frame size not configured")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "model file not readable", err)
	}

	ortInitOnce.Do(func() {
		if libPath := os.Getenv(ortLibraryPathEnv); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "initialise onnxruntime", ortInitErr)
	}

	effectiveWindow := cfg.FrameSamples + contextSamples

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(effectiveWindow)))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create input tensor", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		inputTensor.Destroy()
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create state tensor", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(cfg.SampleRate)})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create sr tensor", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create output tensor", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create stateN tensor", err)
	}

	// The runtime does not guarantee zeroed tensor memory.
	clearFloat32Slice(stateTensor.GetData())
	clearFloat32Slice(stateNTensor.GetData())

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, platformerrors.Wrap(platformerrors.KindModel, "load", "create onnx session", err)
	}

	return &Detector{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		context:      make([]float32, contextSamples),
		window:       cfg.FrameSamples,
		threshold:    cfg.Threshold,
	}, nil
}

// ProcessFrame scores one window: saved left context in the prefix, the
// caller's frame in the suffix, hidden state carried across calls.
func (d *Detector) ProcessFrame(frame []float32) (inter.Result, error) {
	if len(frame) != d.window {
		return inter.Result{}, fmt.Errorf("silero: frame has %d samples, expected %d", len(frame), d.window)
	}

	data := d.inputTensor.GetData()
	copy(data, d.context)
	copy(data[contextSamples:], frame)

	if err := d.session.Run(); err != nil {
		return inter.Result{}, platformerrors.Wrap(platformerrors.KindInference, "predict", "onnx inference", err)
	}

	prob := d.outputTensor.GetData()[0]
	d.lastProb = prob

	// Carry the hidden state and the tail of the effective input into
	// the next call.
	copy(d.stateTensor.GetData(), d.stateNTensor.GetData())
	copy(d.context, data[len(data)-contextSamples:])

	return inter.Result{
		Probability: prob,
		Active:      prob >= d.threshold,
	}, nil
}

// LastProbability returns the most recent speech probability.
func (d *Detector) LastProbability() float32 {
	return d.lastProb
}

// Reset clears the hidden state, left context and cached probability.
func (d *Detector) Reset() error {
	clearFloat32Slice(d.stateTensor.GetData())
	clearFloat32Slice(d.context)
	d.lastProb = 0
	return nil
}

// Close releases the ONNX Runtime resources. Safe to call multiple times.
func (d *Detector) Close() error {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.stateTensor != nil {
		d.stateTensor.Destroy()
		d.stateTensor = nil
	}
	if d.srTensor != nil {
		d.srTensor.Destroy()
		d.srTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.stateNTensor != nil {
		d.stateNTensor.Destroy()
		d.stateNTensor = nil
	}
	return nil
}

func clearFloat32Slice(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
