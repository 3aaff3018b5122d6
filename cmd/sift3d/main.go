// Command sift3d is the command-line collaborator for the detection
// core (spec §6): flag parsing, volume I/O, and CSV output live here,
// deliberately outside the core module.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sift3d "github.com/rpankka/SIFT3D"
	"github.com/rpankka/SIFT3D/descriptor"
	"github.com/rpankka/SIFT3D/internal/slog"
	"github.com/rpankka/SIFT3D/keypoint"
)

// flags mirrors spec §6's CLI surface plus the gzip/strict knobs that
// surface the persistence and unknown-flag-handling contracts.
type flags struct {
	firstOctave int
	numOctaves  int
	numKpLevels int
	sigmaN      float64
	sigma0      float64
	peakThresh  float64
	cornerThresh float64
	nnThresh    float64
	gzip        bool
	strict      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var fl flags

	root := &cobra.Command{
		Use:           "sift3d",
		Short:         "3D scale-invariant keypoint detector and descriptor extractor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&fl.firstOctave, "first_octave", 0, "first octave index")
	root.PersistentFlags().IntVar(&fl.numOctaves, "num_octaves", -1, "number of octaves, or -1 for automatic")
	root.PersistentFlags().IntVar(&fl.numKpLevels, "num_kp_levels", 3, "number of keypoint levels per octave")
	root.PersistentFlags().Float64Var(&fl.sigmaN, "sigma_n", 1.15, "assumed nominal blur of the input volume")
	root.PersistentFlags().Float64Var(&fl.sigma0, "sigma0", 1.6, "base scale of the first octave")
	root.PersistentFlags().Float64Var(&fl.peakThresh, "peak_thresh", 0.03, "DoG response magnitude threshold")
	root.PersistentFlags().Float64Var(&fl.cornerThresh, "corner_thresh", 0.5, "orientation corner-alignment threshold")
	root.PersistentFlags().BoolVar(&fl.gzip, "gzip", false, "gzip-compress CSV output")
	root.PersistentFlags().BoolVar(&fl.strict, "strict", false, "fail on unrecognized flags instead of passing them through")

	root.AddCommand(newDetectCmd(&fl))
	root.AddCommand(newMatchCmd(&fl))

	// Lenient mode is the default: unknown flags are reported by pflag
	// itself only when strict mode asks for it (spec §6, "reported in
	// strict mode or passed through").
	cobra.OnInitialize(func() {
		root.FParseErrWhitelist.UnknownFlags = !fl.strict
	})

	return root
}

func newDetectCmd(fl *flags) *cobra.Command {
	var kpOut, descOut string

	cmd := &cobra.Command{
		Use:   "detect <volume>",
		Short: "detect, refine, orient, and describe keypoints in a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := pipelineFromFlags(fl)
			if err != nil {
				return err
			}
			vol, err := readRawVolume(args[0])
			if err != nil {
				return err
			}
			store, descs, err := pl.Process(vol)
			if err != nil {
				return err
			}
			slog.Log.Info().Int("keypoints", len(store.KPs)).Msg("detection complete")

			if err := writeKeypoints(store, kpOut, fl.gzip); err != nil {
				return err
			}
			return writeDescriptors(descs, descOut, fl.gzip)
		},
	}
	cmd.Flags().StringVar(&kpOut, "keypoints_out", "keypoints.csv", "output keypoint CSV path")
	cmd.Flags().StringVar(&descOut, "descriptors_out", "descriptors.csv", "output descriptor CSV path")
	return cmd
}

func newMatchCmd(fl *flags) *cobra.Command {
	var forwardBack bool
	var maxDist float64
	var outA, outB string

	cmd := &cobra.Command{
		Use:   "match <descriptors_a.csv> <descriptors_b.csv>",
		Short: "match two descriptor files by brute-force L2 nearest neighbor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fl.nnThresh <= 0 {
				return fmt.Errorf("sift3d: nn_thresh must be > 0, got %g", fl.nnThresh)
			}
			nHistPerDim := descriptor.DefaultParams().NHistPerDim

			a, err := readDescriptors(args[0], nHistPerDim, fl.gzip)
			if err != nil {
				return err
			}
			b, err := readDescriptors(args[1], nHistPerDim, fl.gzip)
			if err != nil {
				return err
			}

			mp := matchParamsFromFlags(fl, forwardBack, maxDist)
			m := matchDescriptors(a, b, mp)
			ca, cb := matchCoords(a, b, m)

			if err := writeCoords(ca, outA, fl.gzip); err != nil {
				return err
			}
			return writeCoords(cb, outB, fl.gzip)
		},
	}
	cmd.Flags().Float64Var(&fl.nnThresh, "nn_thresh", 0.8, "Lowe ratio test threshold")
	cmd.Flags().BoolVar(&forwardBack, "forward_backward", false, "require forward-backward consistency")
	cmd.Flags().Float64Var(&maxDist, "max_dist", 0, "max coordinate distance gate, 0 disables")
	cmd.Flags().StringVar(&outA, "matches_a_out", "matches_a.csv", "matched coordinates, side A")
	cmd.Flags().StringVar(&outB, "matches_b_out", "matches_b.csv", "matched coordinates, side B")
	return cmd
}

func pipelineFromFlags(fl *flags) (*sift3d.Pipeline, error) {
	pl := sift3d.NewPipeline()
	setters := []func() error{
		func() error { return pl.SetFirstOctave(fl.firstOctave) },
		func() error { return pl.SetNumOctaves(fl.numOctaves) },
		func() error { return pl.SetNumKpLevels(fl.numKpLevels) },
		func() error { return pl.SetSigmaN(fl.sigmaN) },
		func() error { return pl.SetSigma0(fl.sigma0) },
		func() error { return pl.SetPeakThresh(fl.peakThresh) },
		func() error { return pl.SetCornerThresh(fl.cornerThresh) },
	}
	for _, set := range setters {
		if err := set(); err != nil {
			return nil, err
		}
	}
	return pl, nil
}

func writeKeypoints(store *keypoint.Store, path string, gz bool) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !gz {
		return store.WriteCSV(f)
	}
	gw := keypoint.GzipWriter(f)
	defer gw.Close()
	return store.WriteCSV(gw)
}

func writeDescriptors(descs []*descriptor.Descriptor, path string, gz bool) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !gz {
		return descriptor.WriteCSV(f, descs)
	}
	gw := descriptor.GzipWriter(f)
	defer gw.Close()
	return descriptor.WriteCSV(gw, descs)
}

func readDescriptors(path string, nHistPerDim int, gz bool) ([]*descriptor.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !gz {
		return descriptor.ReadCSV(f, nHistPerDim)
	}
	gr, err := descriptor.GzipReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return descriptor.ReadCSV(gr, nHistPerDim)
}
