package keypoint

import (
	"bytes"
	"math"
	"testing"
)

func sampleStore() *Store {
	return &Store{KPs: []Keypoint{
		{O: 1, S: 2, Xd: 3.5, Yd: 4.25, Zd: 1.125, Sd: 2.0, SdRel: 1.0, R: [3][3]float64{
			{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		}},
		{O: 0, S: 1, Xd: 10, Yd: 20, Zd: 30, Sd: 1.6, SdRel: 1.6, R: [3][3]float64{
			{0, 1, 0}, {-1, 0, 0}, {0, 0, 1},
		}},
	}}
}

// TestCSVRoundTrip is property 5: writing then reading a keypoint
// store yields byte-equal coordinates and element-equal R within
// 1e-12.
func TestCSVRoundTrip(t *testing.T) {
	s := sampleStore()
	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.KPs) != len(s.KPs) {
		t.Fatalf("got %d keypoints, want %d", len(got.KPs), len(s.KPs))
	}
	for i, kp := range s.KPs {
		scale := pow2(kp.O)
		g := got.KPs[i]
		if g.Xd != kp.Xd*scale || g.Yd != kp.Yd*scale || g.Zd != kp.Zd*scale {
			t.Errorf("kp %d: coords not byte-equal after round trip: got (%v,%v,%v) want (%v,%v,%v)",
				i, g.Xd, g.Yd, g.Zd, kp.Xd*scale, kp.Yd*scale, kp.Zd*scale)
		}
		if math.Abs(g.Sd-kp.Sd) > 1e-12 {
			t.Errorf("kp %d: Sd not preserved: got %v want %v", i, g.Sd, kp.Sd)
		}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				if math.Abs(g.R[a][b]-kp.R[a][b]) > 1e-12 {
					t.Errorf("kp %d: R[%d][%d] = %v, want %v", i, a, b, g.R[a][b], kp.R[a][b])
				}
			}
		}
	}
}

func TestCompactRemovePreservesOrder(t *testing.T) {
	s := &Store{KPs: []Keypoint{{Xi: 0}, {Xi: 1}, {Xi: 2}, {Xi: 3}}}
	s.CompactRemove([]bool{false, true, false, true})
	if len(s.KPs) != 2 || s.KPs[0].Xi != 0 || s.KPs[1].Xi != 2 {
		t.Fatalf("unexpected compacted store: %+v", s.KPs)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	s := sampleStore()
	var buf bytes.Buffer
	gw := GzipWriter(&buf)
	if err := s.WriteCSV(gw); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	gr, err := GzipReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer gr.Close()
	got, err := ReadCSV(gr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.KPs) != len(s.KPs) {
		t.Fatalf("got %d keypoints, want %d", len(got.KPs), len(s.KPs))
	}
}
