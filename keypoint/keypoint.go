// Package keypoint defines the Keypoint tuple and its caller-owned
// Store, per spec §3's data model, along with the CSV persistence
// format of spec §6.
package keypoint

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Keypoint is a detected, refined, and (if it survived orientation
// assignment) oriented 3D scale-space extremum.
//
//   - O, S are the integer pyramid indices of detection.
//   - Xi, Yi, Zi is the integer voxel of detection.
//   - Xd, Yd, Zd, Sd is the refined real-valued location in octave O's
//     coordinates.
//   - SdRel is Sd*2^-O, the octave-independent scale.
//   - R is a 3x3 right-handed rotation expressing the local frame,
//     set by orientation assignment.
type Keypoint struct {
	O, S       int
	Xi, Yi, Zi int
	Xd, Yd, Zd float64
	Sd         float64
	SdRel      float64
	R          [3][3]float64
}

// Store owns a caller-allocated slice of keypoints. The orchestrator
// writes into a Store but never retains it; Store's lifetime is
// managed entirely by its caller (spec §3, "Ownership").
type Store struct {
	KPs []Keypoint
}

// Reset clears s for reuse without releasing its backing array.
func (s *Store) Reset() { s.KPs = s.KPs[:0] }

// CompactRemove removes every keypoint i for which reject[i] is true
// (reject has one entry per keypoint), preserving the relative order
// of survivors, per spec §4.6 ("stable compact").
func (s *Store) CompactRemove(reject []bool) {
	out := s.KPs[:0]
	for i, kp := range s.KPs {
		if !reject[i] {
			out = append(out, kp)
		}
	}
	s.KPs = out
}

// csvHeader matches spec §6's 13-column keypoint schema.
var csvHeader = []string{"x", "y", "z", "s", "R00", "R01", "R02", "R10", "R11", "R12", "R20", "R21", "R22"}

// WriteCSV writes s in the format of spec §6: one row per keypoint,
// columns [x,y,z,s,R00..R22], coordinates scaled to the base octave
// (i.e. Xd*2^O, Yd*2^O, Zd*2^O, Sd).
func (s *Store) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, kp := range s.KPs {
		scale := pow2(kp.O)
		row := []string{
			strconv.FormatFloat(kp.Xd*scale, 'g', -1, 64),
			strconv.FormatFloat(kp.Yd*scale, 'g', -1, 64),
			strconv.FormatFloat(kp.Zd*scale, 'g', -1, 64),
			strconv.FormatFloat(kp.Sd, 'g', -1, 64),
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				row = append(row, strconv.FormatFloat(kp.R[i][j], 'g', -1, 64))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a keypoint store previously written by WriteCSV. The
// octave-scaling applied on write is not invertible in general (O is
// not stored), so ReadCSV reconstructs keypoints with O=0 and
// Xd/Yd/Zd set to the already-base-scaled coordinates; this matches
// the persisted format's contract (spec §6), which only guarantees
// round-tripping of the 13 stored columns, not of the original
// per-octave indices (spec §8 property 5).
func ReadCSV(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Store{}, nil
	}
	s := &Store{KPs: make([]Keypoint, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		if len(row) != 13 {
			return nil, fmt.Errorf("keypoint: row %d has %d columns, want 13", i, len(row))
		}
		vals := make([]float64, 13)
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("keypoint: row %d column %d: %w", i, j, err)
			}
			vals[j] = v
		}
		kp := Keypoint{
			Xd: vals[0], Yd: vals[1], Zd: vals[2], Sd: vals[3],
			SdRel: vals[3],
		}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				kp.R[a][b] = vals[4+a*3+b]
			}
		}
		s.KPs = append(s.KPs, kp)
	}
	return s, nil
}

// GzipWriter wraps w so WriteCSV's output is gzip-compressed. The
// caller is responsible for closing the returned writer to flush the
// gzip trailer.
func GzipWriter(w io.Writer) *gzip.Writer { return gzip.NewWriter(w) }

// GzipReader wraps r to transparently decompress a gzipped keypoint
// CSV previously produced via GzipWriter.
func GzipReader(r io.Reader) (*gzip.Reader, error) { return gzip.NewReader(r) }

func pow2(o int) float64 {
	if o >= 0 {
		return float64(int(1) << uint(o))
	}
	v := 1.0
	for i := 0; i < -o; i++ {
		v /= 2
	}
	return v
}
