// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package data implements the Producer, which reads an ordered list of image files in background
// goroutines and yields them as fixed size batches.
//
// Reading and decoding happens in parallel, but the batches always follow the order of the given
// paths (or a seeded shuffle of it), so the same configuration always yields the same batches.
//
// Example:
//
//	producer, err := data.New(ctx, data.Config{Paths: files, Size: 64, Whiten: data.WhitenSketch,
//		BatchSize: len(files), NumEpochs: 1})
//	if err != nil {
//		return err
//	}
//	defer func() { _ = producer.Stop() }()
//	for {
//		batch, err := producer.Next(ctx)
//		if err == io.EOF {
//			break  // Input exhausted.
//		}
//		...
//	}
package data

import (
	"context"
	"io"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gomlx/sketch2render/internal/workerspool"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrStopped is returned by Producer.Next after Producer.Stop was called.
var ErrStopped = errors.New("producer stopped")

// Config of a Producer.
type Config struct {
	// Paths of the input images, in the order they should be yielded (if not shuffled).
	Paths []string

	// TargetPaths are optional. If set, it must have the same length as Paths, and each target image
	// is yielded along with its input, with the same augmentation. See Producer.NextPair.
	TargetPaths []string

	// Size of the (square) images yielded: images are resized to Size x Size.
	Size int

	// Whiten normalization and Color (RGB if true, grayscale otherwise) of the input images.
	Whiten Whitening
	Color  bool

	// TargetWhiten and TargetColor are used for the target images.
	TargetWhiten Whitening
	TargetColor  bool

	// Augment enables random flips, rotations and color jitter. Shuffle enables a random order of the
	// examples at each epoch. Both are seeded with Seed.
	Augment, Shuffle bool
	Seed             int64

	// BatchSize is the number of images in each batch. A trailing incomplete batch is dropped.
	BatchSize int

	// NumEpochs is the number of passes over Paths. If 0, it loops forever.
	NumEpochs int

	// Parallelism is the number of images decoded in parallel. If 0, runtime.NumCPU() is used.
	Parallelism int

	// Capacity is the number of batches prepared in advance. If 0, it defaults to 2.
	Capacity int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Paths) == 0 {
		return errors.New("data.Config: no input paths given")
	}
	if len(c.TargetPaths) > 0 && len(c.TargetPaths) != len(c.Paths) {
		return errors.Errorf("data.Config: %d target paths given for %d input paths", len(c.TargetPaths), len(c.Paths))
	}
	if c.Size <= 0 {
		return errors.Errorf("data.Config: invalid image size %d", c.Size)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("data.Config: invalid batch size %d", c.BatchSize)
	}
	if c.NumEpochs < 0 {
		return errors.Errorf("data.Config: invalid number of epochs %d", c.NumEpochs)
	}
	return nil
}

// ListImages returns the sorted list of files in folder with the given extension (e.g. ".png").
func ListImages(folder, ext string) ([]string, error) {
	folder, err := fsutil.ReplaceTildeInDir(folder)
	if err != nil {
		return nil, err
	}
	return fsutil.ListFiles(folder, ext)
}

// unit is one batch ready to be consumed.
type unit struct {
	inputs, targets *images.Batch
}

// Producer yields batches of images read by background goroutines.
//
// It must be stopped with Stop, which also waits for all background goroutines to finish.
type Producer struct {
	config Config
	input  imageSpec
	target imageSpec

	pool    *workerspool.Pool
	cancel  context.CancelFunc
	batches chan unit
	done    chan struct{} // Closed when the background goroutine exits.

	running  atomic.Int32
	stopped  atomic.Bool
	stopOnce sync.Once

	muErr sync.Mutex
	err   error
}

// New creates a Producer and starts reading images in the background.
//
// The background goroutines stop when ctx is cancelled, when the input is exhausted, or when Stop is called.
func New(ctx context.Context, config Config) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.NumCPU()
	}
	if config.Capacity <= 0 {
		config.Capacity = 2
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Producer{
		config:  config,
		input:   imageSpec{size: config.Size, color: config.Color, whiten: config.Whiten},
		target:  imageSpec{size: config.Size, color: config.TargetColor, whiten: config.TargetWhiten},
		pool:    workerspool.NewWithParallelism(config.Parallelism),
		cancel:  cancel,
		batches: make(chan unit, config.Capacity),
		done:    make(chan struct{}),
	}
	p.running.Store(1)
	go p.run(ctx)
	klog.V(1).Infof("data.Producer started: %d files, batch size %d, %d epochs, parallelism %d, whitening %s",
		len(config.Paths), config.BatchSize, config.NumEpochs, config.Parallelism, config.Whiten)
	return p, nil
}

// BatchSize returns the number of images in each batch.
func (p *Producer) BatchSize() int {
	return p.config.BatchSize
}

// Running returns the number of background goroutines still running.
func (p *Producer) Running() int {
	return int(p.running.Load()) + p.pool.Running()
}

// Err returns the first error that happened in the background goroutines, if any.
func (p *Producer) Err() error {
	p.muErr.Lock()
	defer p.muErr.Unlock()
	return p.err
}

func (p *Producer) setErr(err error) {
	p.muErr.Lock()
	defer p.muErr.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Next blocks until a batch of input images is available and returns it.
//
// It returns io.EOF when the input is exhausted, which is the normal end of the data.
// If a background reader failed, or the context given to New was cancelled, that error is returned instead.
func (p *Producer) Next(ctx context.Context) (*images.Batch, error) {
	u, err := p.next(ctx)
	return u.inputs, err
}

// NextPair is like Next, but also returns the corresponding target images. It requires Config.TargetPaths.
func (p *Producer) NextPair(ctx context.Context) (inputs, targets *images.Batch, err error) {
	if len(p.config.TargetPaths) == 0 {
		return nil, nil, errors.New("data.Producer.NextPair requires Config.TargetPaths")
	}
	u, err := p.next(ctx)
	return u.inputs, u.targets, err
}

func (p *Producer) next(ctx context.Context) (unit, error) {
	if p.stopped.Load() {
		return unit{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return unit{}, ctx.Err()
	case u, ok := <-p.batches:
		if ok {
			return u, nil
		}
	}
	if err := p.Err(); err != nil {
		return unit{}, err
	}
	if p.stopped.Load() {
		return unit{}, ErrStopped
	}
	return unit{}, io.EOF
}

// Stop asks the background goroutines to stop and waits for them to finish.
//
// It can be called multiple times, and it returns the first error of the background readers, if any.
// That includes the cancellation of the context given to New, if it happened before Stop.
func (p *Producer) Stop() error {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.cancel()
	})
	<-p.done
	return p.Err()
}

// run is the background goroutine that assembles the batches, in order.
func (p *Producer) run(ctx context.Context) {
	defer close(p.done)
	defer p.running.Add(-1)
	defer p.pool.Wait()
	defer close(p.batches)
	defer func() {
		// A cancelled parent context is an interruption, not the end of the input.
		if ctx.Err() != nil && !p.stopped.Load() {
			p.setErr(errors.WithMessage(ctx.Err(), "data.Producer interrupted"))
		}
	}()

	nextIndex := p.indexStream()
	batchSize := p.config.BatchSize
	seq := 0
	for {
		indices := make([]int, 0, batchSize)
		for len(indices) < batchSize {
			idx, ok := nextIndex()
			if !ok {
				if len(indices) > 0 {
					klog.V(1).Infof("data.Producer: dropping final incomplete batch of %d images", len(indices))
				}
				return
			}
			indices = append(indices, idx)
		}
		u, err := p.assemble(ctx, indices, seq)
		seq += batchSize
		if err != nil {
			if ctx.Err() == nil {
				klog.Errorf("data.Producer failed: %+v", err)
				p.setErr(err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case p.batches <- u:
		}
	}
}

// indexStream returns a function that yields the indices of the paths to read, epoch after epoch.
func (p *Producer) indexStream() func() (int, bool) {
	numPaths := len(p.config.Paths)
	var order []int
	epoch, pos := 0, numPaths
	return func() (int, bool) {
		if pos >= numPaths {
			if order != nil {
				epoch++
			}
			if p.config.NumEpochs > 0 && epoch >= p.config.NumEpochs {
				return 0, false
			}
			if p.config.Shuffle {
				order = rand.New(rand.NewSource(p.config.Seed + int64(epoch)*1_000_003)).Perm(numPaths)
			} else {
				order = make([]int, numPaths)
				for ii := range order {
					order[ii] = ii
				}
			}
			pos = 0
		}
		idx := order[pos]
		pos++
		return idx, true
	}
}

// assemble reads the images for the given indices in parallel, and returns them in order.
// seq is the global position of the first example, used to seed the augmentations.
func (p *Producer) assemble(ctx context.Context, indices []int, seq int) (unit, error) {
	withTargets := len(p.config.TargetPaths) > 0
	inputs := make([]*images.Batch, len(indices))
	targets := make([]*images.Batch, len(indices))
	errs := make([]error, len(indices))
	err := p.pool.ForEach(ctx, len(indices), func(ii int) {
		if ctx.Err() != nil {
			errs[ii] = ctx.Err()
			return
		}
		var aug *augmentation
		if p.config.Augment {
			a := drawAugmentation(rand.New(rand.NewSource(p.config.Seed*31 + int64(seq+ii))))
			aug = &a
		}
		idx := indices[ii]
		inputs[ii], errs[ii] = p.input.load(p.config.Paths[idx], aug)
		if errs[ii] == nil && withTargets {
			targets[ii], errs[ii] = p.target.load(p.config.TargetPaths[idx], aug)
		}
	})
	if err != nil {
		return unit{}, err
	}
	for _, err := range errs {
		if err != nil {
			return unit{}, err
		}
	}
	var u unit
	if err = concatBatches(&u.inputs, inputs); err != nil {
		return unit{}, err
	}
	if withTargets {
		if err = concatBatches(&u.targets, targets); err != nil {
			return unit{}, err
		}
	}
	return u, nil
}

func concatBatches(dst **images.Batch, parts []*images.Batch) error {
	for _, part := range parts[1:] {
		if !part.SameImageShape(parts[0]) {
			return errors.Errorf("images in batch have different shapes: %s and %s", parts[0], part)
		}
	}
	*dst = images.Concat(parts...)
	return nil
}
