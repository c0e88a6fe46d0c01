package main

import (
	"context"
	"os"
	"time"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/filler"
	"github.com/speechflow/speechflow/node"
	"github.com/speechflow/speechflow/wire"
)

// demoFrameDuration is the chunk size the file source slices raw PCM into;
// any value works, this one just keeps the demo graph's chunk count modest.
const demoFrameDuration = 20 * time.Millisecond

func identity(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
	push(in)
	return nil
}

// fileSourceNode reads a raw PCM file in one shot and replays it downstream
// as fixed-duration audio chunks, a stand-in for a real capture device.
type fileSourceNode struct {
	*node.Base
	path string
	cfg  *config.Graph
}

func newFileSourceNode(id, path string, cfg *config.Graph, emitter *events.Emitter) (*fileSourceNode, error) {
	b, err := node.New(id, chunk.KindNone, chunk.KindAudio, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	n := &fileSourceNode{Base: b, path: path, cfg: cfg}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() { _ = b.Stream().Run(ctx, identity) }()
		go n.feed(ctx)
		return nil
	})
	return n, nil
}

// feed slices the file into demoFrameDuration chunks and writes them into
// this node's own stream input, where the identity transform started by
// Open relays them to the output side the graph runtime pumps from.
func (n *fileSourceNode) feed(ctx context.Context) {
	data, err := os.ReadFile(n.path)
	if err != nil {
		_ = n.Stream().Write(ctx, nil)
		return
	}

	bpf := n.cfg.BytesPerFrame()
	framesPerChunk := int(float64(n.cfg.SampleRate) * demoFrameDuration.Seconds())
	chunkBytes := framesPerChunk * bpf
	if chunkBytes <= 0 {
		chunkBytes = bpf
	}

	var cursor time.Duration
	for off := 0; off < len(data); off += chunkBytes {
		end := off + chunkBytes
		if end > len(data) {
			end = len(data)
		}
		payload := data[off:end]
		frames := len(payload) / bpf
		dur := time.Duration(float64(frames) / float64(n.cfg.SampleRate) * float64(time.Second))
		c := chunk.NewAudio(cursor, cursor+dur, chunk.Final, payload, nil)
		if err := n.Stream().Write(ctx, c); err != nil {
			return
		}
		cursor += dur
	}
	_ = n.Stream().Write(ctx, nil)
}

// fillerNode wraps a *filler.Filler as a graph node, turning its Process
// call-and-collect shape into the stream package's push-based transform.
type fillerNode struct {
	*node.Base
	f *filler.Filler
}

func newFillerNode(id string, f *filler.Filler, cfg *config.Graph, emitter *events.Emitter) (*fillerNode, error) {
	b, err := node.New(id, chunk.KindAudio, chunk.KindAudio, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	n := &fillerNode{Base: b, f: f}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() {
			_ = b.Stream().Run(ctx, func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
				out, err := n.f.Process(in)
				if err != nil {
					return err
				}
				for _, c := range out {
					push(c)
				}
				return nil
			})
		}()
		return nil
	})
	return n, nil
}

// newWireLoopbackNode demonstrates the wire codec in-process: every
// chunk is encoded to its wire frame and immediately decoded back, so the
// demo graph exercises the codec without a real network hop (netedge covers
// the networked case).
func newWireLoopbackNode(id string, cfg *config.Graph, emitter *events.Emitter) (*node.Base, error) {
	b, err := node.New(id, chunk.KindAudio, chunk.KindAudio, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() {
			_ = b.Stream().Run(ctx, func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
				frame, err := wire.Encode(in)
				if err != nil {
					return err
				}
				decoded, err := wire.Decode(frame)
				if err != nil {
					return err
				}
				push(decoded)
				return nil
			})
		}()
		return nil
	})
	return b, nil
}

// fileSinkNode writes every chunk's audio payload to an output file in
// arrival order, the demo's stand-in for a playback device or encoder.
type fileSinkNode struct {
	*node.Base
	path string
	f    *os.File
}

func newFileSinkNode(id, path string, cfg *config.Graph, emitter *events.Emitter) (*fileSinkNode, error) {
	b, err := node.New(id, chunk.KindAudio, chunk.KindNone, nil, cfg, nil, nil, emitter)
	if err != nil {
		return nil, err
	}
	n := &fileSinkNode{Base: b, path: path}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		f, err := os.Create(n.path)
		if err != nil {
			return errs.New(id, "open", errs.Resource, err)
		}
		n.f = f
		go func() {
			_ = b.Stream().Run(ctx, func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
				_, werr := n.f.Write(in.Audio)
				return werr
			})
		}()
		return nil
	})
	b.WithClose(func(ctx context.Context, b *node.Base) error {
		if n.f == nil {
			return nil
		}
		return n.f.Close()
	})
	return n, nil
}
