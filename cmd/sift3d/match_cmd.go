package main

import (
	"github.com/rpankka/SIFT3D/descriptor"
	"github.com/rpankka/SIFT3D/match"
)

func matchParamsFromFlags(fl *flags, forwardBack bool, maxDist float64) match.Params {
	return match.Params{NNThresh: fl.nnThresh, ForwardBack: forwardBack, MaxDist: maxDist}
}

func matchDescriptors(a, b []*descriptor.Descriptor, p match.Params) match.Matches {
	return match.Match(a, b, p)
}

func matchCoords(a, b []*descriptor.Descriptor, m match.Matches) (ca, cb [][3]float64) {
	return match.Coords(a, b, m)
}

func writeCoords(coords [][3]float64, path string, gz bool) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !gz {
		return match.WriteCoordsCSV(f, coords)
	}
	gw := descriptor.GzipWriter(f)
	defer gw.Close()
	return match.WriteCoordsCSV(gw, coords)
}
