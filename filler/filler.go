// Package filler implements sample-domain gap reconciliation: turning a
// possibly non-contiguous, overlapping stream of audio chunks into a
// monotonic, contiguous, non-overlapping one suitable for encoders and
// network sinks.
package filler

import (
	"fmt"
	"time"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/logging"
	"github.com/speechflow/speechflow/metrics"
)

// DefaultSampleTolerance is the sub-sample slop used to absorb floating
// point drift when no override is supplied. Callers running at unusual
// sample rates can pass a rate-proportional tolerance to New instead.
const DefaultSampleTolerance = 0.5

// MetaFillerKind tags an emitted chunk as synthetic ("gap") or real
// ("content") so downstream consumers can count them independently.
const MetaFillerKind = "filler_kind"

const (
	FillerKindGap     = "gap"
	FillerKindContent = "content"
)

// Filler tracks the furthest already-emitted point in the timeline and
// reconciles each incoming chunk against it.
type Filler struct {
	sampleRate      int
	channels        int
	bytesPerSample  int
	sampleTolerance float64

	emittedEndSamples float64
	emitter           *events.Emitter
	metrics           *metrics.Registry
}

// New constructs a Filler. tolerance <= 0 resolves to DefaultSampleTolerance.
func New(sampleRate, channels int, tolerance float64, emitter *events.Emitter) *Filler {
	if tolerance <= 0 {
		tolerance = DefaultSampleTolerance
	}
	return &Filler{
		sampleRate:      sampleRate,
		channels:        channels,
		bytesPerSample:  2,
		sampleTolerance: tolerance,
		emitter:         emitter,
	}
}

// WithMetrics attaches a Prometheus registry that FillerGaps/FillerDrops
// counters are recorded against, in addition to the event bus.
func (f *Filler) WithMetrics(reg *metrics.Registry) *Filler {
	f.metrics = reg
	return f
}

func (f *Filler) bytesPerFrame() int { return f.channels * f.bytesPerSample }

func (f *Filler) toSamples(d time.Duration) float64 {
	return d.Seconds() * float64(f.sampleRate)
}

func (f *Filler) toDuration(samples float64) time.Duration {
	return time.Duration(samples / float64(f.sampleRate) * float64(time.Second))
}

// Process reconciles one incoming audio chunk and returns the chunks to
// emit downstream: a synthetic gap chunk when the input starts past the
// cursor, followed by the trimmed content chunk unless the input is dropped.
// The result can therefore be empty, the content chunk alone, the gap chunk
// alone, or the gap chunk followed by the content chunk.
func (f *Filler) Process(in *chunk.Chunk) ([]*chunk.Chunk, error) {
	if in.Kind != chunk.KindAudio {
		return nil, errs.New("filler", "process", errs.Configuration, fmt.Errorf("filler only accepts audio chunks, got %s", in.Kind))
	}

	startSamp := f.toSamples(in.TimestampStart)
	endSamp := f.toSamples(in.TimestampEnd)
	if endSamp < startSamp {
		return nil, errs.New("filler", "process", errs.Stream, fmt.Errorf("invalid timestamps: end %v before start %v", in.TimestampEnd, in.TimestampStart))
	}

	var out []*chunk.Chunk

	if startSamp > f.emittedEndSamples+f.sampleTolerance {
		gap := f.emitGap(f.emittedEndSamples, startSamp, in.Meta)
		out = append(out, gap)
		f.emittedEndSamples = startSamp
	}

	if endSamp <= f.emittedEndSamples+f.sampleTolerance {
		logging.ChunkDropped("filler", "fully covered", "start", in.TimestampStart, "end", in.TimestampEnd)
		if f.emitter != nil {
			f.emitter.FillerDrop("fully-covered")
		}
		if f.metrics != nil {
			f.metrics.FillerDrops.WithLabelValues("fully-covered").Inc()
		}
		return out, nil
	}

	trimHead := int64(0)
	if d := f.emittedEndSamples - startSamp; d > 0 {
		trimHead = int64(d)
	}
	availableFrames := int64((endSamp - startSamp)) - trimHead

	bufFrames := int64(len(in.Audio) / f.bytesPerFrame())
	startFrame := trimHead
	if startFrame > bufFrames {
		startFrame = bufFrames
	}
	endFrame := startFrame + availableFrames
	if endFrame > bufFrames {
		endFrame = bufFrames
	}
	if endFrame <= startFrame {
		logging.ChunkDropped("filler", "no frames remain after clamping", "start", in.TimestampStart, "end", in.TimestampEnd)
		if f.emitter != nil {
			f.emitter.FillerDrop("clamped-empty")
		}
		if f.metrics != nil {
			f.metrics.FillerDrops.WithLabelValues("clamped-empty").Inc()
		}
		return out, nil
	}

	bpf := int64(f.bytesPerFrame())
	payload := make([]byte, (endFrame-startFrame)*bpf)
	copy(payload, in.Audio[startFrame*bpf:endFrame*bpf])

	outStartSamp := startSamp + float64(startFrame)
	outEndSamp := outStartSamp + float64(endFrame-startFrame)

	content := chunk.NewAudio(f.toDuration(outStartSamp), f.toDuration(outEndSamp), in.Finality, payload, in.Meta)
	content.Meta = cloneMeta(content.Meta)
	content.Meta[MetaFillerKind] = FillerKindContent
	out = append(out, content)
	if f.metrics != nil {
		f.metrics.ChunksProcessed.WithLabelValues("filler", chunk.KindAudio.String()).Inc()
	}

	if outEndSamp > f.emittedEndSamples {
		f.emittedEndSamples = outEndSamp
	}
	return out, nil
}

func (f *Filler) emitGap(startSamp, endSamp float64, meta map[string]any) *chunk.Chunk {
	frames := int64(endSamp - startSamp)
	payload := make([]byte, frames*int64(f.bytesPerFrame()))

	gap := chunk.NewAudio(f.toDuration(startSamp), f.toDuration(endSamp), chunk.Final, payload, meta)
	gap.Meta = cloneMeta(gap.Meta)
	gap.Meta[MetaFillerKind] = FillerKindGap

	logging.Debug("gap inserted", "component", "filler", "start_samples", startSamp, "end_samples", endSamp)
	if f.emitter != nil {
		f.emitter.FillerGap(int64(startSamp), int64(endSamp))
	}
	if f.metrics != nil {
		f.metrics.FillerGaps.Inc()
	}
	return gap
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
