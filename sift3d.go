// Package sift3d is the root parameter/lifecycle orchestrator
// (component C11): it owns a pyramid, its precomputed kernels, and the
// shared icosahedral mesh, and drives the full detect -> refine ->
// orient -> describe pipeline (or the dense per-voxel variant) over a
// caller-supplied volume.
package sift3d

import (
	"fmt"

	"github.com/rpankka/SIFT3D/descriptor"
	"github.com/rpankka/SIFT3D/detect"
	"github.com/rpankka/SIFT3D/internal/outcome"
	"github.com/rpankka/SIFT3D/internal/slog"
	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/match"
	"github.com/rpankka/SIFT3D/mesh"
	"github.com/rpankka/SIFT3D/orientation"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/refine"
	"github.com/rpankka/SIFT3D/volume"
	"gorgonia.org/tensor"
)

// Params aggregates every tunable of spec §6's parameter table, one
// field per subsystem.
type Params struct {
	Pyramid     pyramid.Params
	Detect      detect.Params
	Refine      refine.Params
	Orientation orientation.Params
	Descriptor  descriptor.Params
	Match       match.Params
}

// DefaultParams composes each subsystem's own defaults.
func DefaultParams() Params {
	return Params{
		Pyramid:     pyramid.DefaultParams(),
		Detect:      detect.DefaultParams(),
		Refine:      refine.DefaultParams(),
		Orientation: orientation.DefaultParams(),
		Descriptor:  descriptor.DefaultParams(),
		Match:       match.Params{NNThresh: 0.8},
	}
}

// Option configures a Pipeline at construction time, following the
// functional-options shape used throughout the reference stack (a
// typed specialization of the generic Option func(interface{}) form).
type Option func(*Params)

func WithFirstOctave(o int) Option     { return func(p *Params) { p.Pyramid.FirstOctave = o } }
func WithNumOctaves(n int) Option      { return func(p *Params) { p.Pyramid.NumOctaves = n } }
func WithNumKpLevels(n int) Option     { return func(p *Params) { p.Pyramid.NumKpLevels = n } }
func WithSigmaN(s float64) Option      { return func(p *Params) { p.Pyramid.SigmaN = s } }
func WithSigma0(s float64) Option      { return func(p *Params) { p.Pyramid.Sigma0 = s } }
func WithPeakThresh(v float64) Option  { return func(p *Params) { p.Detect.PeakThresh = v } }
func WithCornerThresh(v float64) Option {
	return func(p *Params) { p.Orientation.CornerThresh = v }
}
func WithNNThresh(v float64) Option { return func(p *Params) { p.Match.NNThresh = v } }

// Pipeline is the orchestrator. It is not safe for concurrent use by
// multiple goroutines; independent Pipelines are fully independent
// (spec §5).
type Pipeline struct {
	params Params
	msh    *mesh.Mesh

	kernels    pyramid.Kernels
	dims       [3]int
	shapeDirty bool

	gpyr *pyramid.GPyr
	dog  *pyramid.DoG
}

// NewPipeline constructs a Pipeline from spec defaults plus opts.
func NewPipeline(opts ...Option) *Pipeline {
	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &Pipeline{params: p, msh: mesh.Default(), shapeDirty: true}
}

// Params returns a copy of the pipeline's current parameters.
func (pl *Pipeline) Params() Params { return pl.params }

func (pl *Pipeline) setPyramid(mutate func(*pyramid.Params)) error {
	old := pl.params.Pyramid
	mutate(&pl.params.Pyramid)
	if err := pl.params.Pyramid.Validate(); err != nil {
		pl.params.Pyramid = old
		return err
	}
	pl.shapeDirty = true
	return nil
}

// SetFirstOctave, SetNumOctaves, SetNumKpLevels, SetSigmaN, SetSigma0
// validate against pyramid.Params.Validate and mark the pipeline for
// reshape on the next Process call, per spec §5's resource lifecycle.
func (pl *Pipeline) SetFirstOctave(o int) error {
	return pl.setPyramid(func(p *pyramid.Params) { p.FirstOctave = o })
}
func (pl *Pipeline) SetNumOctaves(n int) error {
	return pl.setPyramid(func(p *pyramid.Params) { p.NumOctaves = n })
}
func (pl *Pipeline) SetNumKpLevels(n int) error {
	return pl.setPyramid(func(p *pyramid.Params) { p.NumKpLevels = n })
}
func (pl *Pipeline) SetSigmaN(s float64) error {
	return pl.setPyramid(func(p *pyramid.Params) { p.SigmaN = s })
}
func (pl *Pipeline) SetSigma0(s float64) error {
	return pl.setPyramid(func(p *pyramid.Params) { p.Sigma0 = s })
}

// SetPeakThresh validates peak_thresh > 0 (spec §6), rejecting 0 and
// negative values without mutating the pipeline's live parameters.
func (pl *Pipeline) SetPeakThresh(v float64) error {
	if v <= 0 {
		return fmt.Errorf("sift3d: peak_thresh must be > 0, got %g", v)
	}
	pl.params.Detect.PeakThresh = v
	return nil
}

// SetCornerThresh validates corner_thresh in [0,1] (spec §6).
func (pl *Pipeline) SetCornerThresh(v float64) error {
	old := pl.params.Orientation.CornerThresh
	pl.params.Orientation.CornerThresh = v
	if err := pl.params.Orientation.Validate(); err != nil {
		pl.params.Orientation.CornerThresh = old
		return err
	}
	return nil
}

// SetNNThresh validates nn_thresh > 0 (spec §6).
func (pl *Pipeline) SetNNThresh(v float64) error {
	if v <= 0 {
		return fmt.Errorf("sift3d: nn_thresh must be > 0, got %g", v)
	}
	pl.params.Match.NNThresh = v
	return nil
}

// reshape recomputes Gaussian kernels for the pipeline's current
// pyramid parameters. Resize is idempotent: reshape is a no-op beyond
// recomputation when dims and params already match the last build.
func (pl *Pipeline) reshape(vol *volume.Volume) error {
	k, err := pyramid.BuildKernels(pl.params.Pyramid)
	if err != nil {
		return err
	}
	pl.kernels = k
	pl.dims = [3]int{vol.NX, vol.NY, vol.NZ}
	pl.shapeDirty = false
	return nil
}

// Process runs the full C3-C8 pipeline over vol: builds the GPyr/DoG,
// detects candidates, refines, orients, and extracts descriptors,
// returning only the keypoints that survived every stage alongside
// their descriptors in the same order.
func (pl *Pipeline) Process(vol *volume.Volume) (*keypoint.Store, []*descriptor.Descriptor, error) {
	if vol.NC != 1 {
		return nil, nil, fmt.Errorf("sift3d: Process requires a single-channel volume, got nc=%d", vol.NC)
	}
	if pl.shapeDirty || pl.dims != [3]int{vol.NX, vol.NY, vol.NZ} {
		if err := pl.reshape(vol); err != nil {
			return nil, nil, err
		}
	}

	gpyr, err := pyramid.BuildGPyr(vol, pl.params.Pyramid, pl.kernels)
	if err != nil {
		return nil, nil, err
	}
	dog, err := pyramid.BuildDoG(gpyr)
	if err != nil {
		return nil, nil, err
	}
	pl.gpyr, pl.dog = gpyr, dog

	store := &keypoint.Store{}
	if err := detect.Detect(dog, pl.params.Detect, store); err != nil {
		return nil, nil, err
	}
	slog.Log.Debug().Int("candidates", len(store.KPs)).Msg("extremum detection")

	refined := store.KPs[:0]
	for _, kp := range store.KPs {
		kpCopy := kp
		res, err := refine.Refine(dog, &kpCopy, pl.params.Refine)
		if err != nil {
			return nil, nil, err
		}
		if res == outcome.Ok {
			refined = append(refined, kpCopy)
		}
	}
	store.KPs = refined

	orientation.AssignAll(gpyr, store, pl.params.Orientation)
	slog.Log.Debug().Int("oriented", len(store.KPs)).Msg("orientation assignment")

	descs := make([]*descriptor.Descriptor, 0, len(store.KPs))
	kept := store.KPs[:0]
	for _, kp := range store.KPs {
		d, res := descriptor.Extract(gpyr, pl.msh, kp, pl.params.Descriptor)
		if res == outcome.Ok {
			descs = append(descs, d)
			kept = append(kept, kp)
		}
	}
	store.KPs = kept
	slog.Log.Debug().Int("described", len(descs)).Msg("descriptor extraction")

	return store, descs, nil
}

// ProcessDense runs the dense, per-voxel descriptor mode (component
// C9) over vol, bypassing detection, refinement, and orientation. It
// returns both the raw channel volume and a gorgonia.org/tensor.Dense
// view over the same backing storage, for callers that want a shaped,
// rank-aware handle on the result (spec §4.8).
func (pl *Pipeline) ProcessDense(vol *volume.Volume, p descriptor.DenseParams) (*volume.Volume, *tensor.Dense, error) {
	out, err := descriptor.BuildDense(vol, pl.msh, p)
	if err != nil {
		return nil, nil, err
	}
	t, err := descriptor.Tensor(out)
	if err != nil {
		return nil, nil, err
	}
	return out, t, nil
}

// Clone returns a deep copy of pl's parameters with independent
// pyramid storage: the clone recomputes its own kernels and pyramid on
// its next Process call rather than aliasing pl's (spec §5, "source
// and destination thereafter are independent").
func (pl *Pipeline) Clone() *Pipeline {
	return &Pipeline{params: pl.params, msh: pl.msh, shapeDirty: true}
}
