package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rpankka/SIFT3D/volume"
)

// readRawVolume loads a single-channel volume from a minimal raw
// format: three little-endian uint32 dimensions (nx, ny, nz) followed
// by nx*ny*nz little-endian float64 values in (x,y,z) row-major
// order. Image I/O is out of scope for the detection core (spec §1);
// this is the thinnest possible stand-in so the CLI has something
// concrete to read.
func readRawVolume(path string) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dims [3]uint32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("sift3d: reading volume header: %w", err)
	}
	nx, ny, nz := int(dims[0]), int(dims[1]), int(dims[2])
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("sift3d: invalid volume dimensions %d x %d x %d", nx, ny, nz)
	}

	v := volume.New(nx, ny, nz, 1)
	if err := binary.Read(f, binary.LittleEndian, v.Data); err != nil {
		return nil, fmt.Errorf("sift3d: reading volume payload: %w", err)
	}
	return v, nil
}

func createFile(path string) (io.WriteCloser, error) {
	return os.Create(path)
}
