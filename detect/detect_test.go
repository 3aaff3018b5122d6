package detect

import (
	"testing"

	"github.com/rpankka/SIFT3D/keypoint"
	"github.com/rpankka/SIFT3D/pyramid"
	"github.com/rpankka/SIFT3D/volume"
)

func buildDoGFromVolumes(vols []*volume.Volume, p pyramid.Params) *pyramid.DoG {
	g := &pyramid.GPyr{Params: p, FirstOctave: p.FirstOctave, NumOctaves: 1, Levels: [][]*volume.Volume{vols}}
	dog, err := pyramid.BuildDoG(g)
	if err != nil {
		panic(err)
	}
	return dog
}

// TestUniformVolumeYieldsNoKeypoints is scenario S4.
func TestUniformVolumeYieldsNoKeypoints(t *testing.T) {
	p := pyramid.DefaultParams()
	p.NumOctaves = 1
	nLevels := p.NumLevels()
	vols := make([]*volume.Volume, nLevels)
	for i := range vols {
		v := volume.New(16, 16, 16, 1)
		for j := range v.Data {
			v.Data[j] = 5.0
		}
		vols[i] = v
	}
	dog := buildDoGFromVolumes(vols, p)

	store := &keypoint.Store{}
	if err := Detect(dog, DefaultParams(), store); err != nil {
		t.Fatal(err)
	}
	if len(store.KPs) != 0 {
		t.Fatalf("uniform volume produced %d keypoints, want 0", len(store.KPs))
	}
}

// TestSingleImpulseDetected checks that a synthetic, hand-built DoG
// stack with one clear extremum voxel is found at the expected
// location and scanned level.
func TestSingleImpulseDetected(t *testing.T) {
	p := pyramid.DefaultParams()
	p.NumOctaves = 1
	nLevels := p.NumLevels()
	vols := make([]*volume.Volume, nLevels)
	for i := range vols {
		vols[i] = volume.New(8, 8, 8, 1)
	}
	// Make DoG[1] = gpyr[2]-gpyr[1] peak at (4,4,4) by raising gpyr
	// level 2 there; DoG[2] = gpyr[3]-gpyr[2] gets the matching trough
	// at the same voxel, and every other DoG level is flat.
	vols[2].Set(4, 4, 4, 0, 10.0)

	dog := buildDoGFromVolumes(vols, p)
	store := &keypoint.Store{}
	if err := Detect(dog, DefaultParams(), store); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, kp := range store.KPs {
		if kp.Xi == 4 && kp.Yi == 4 && kp.Zi == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a keypoint at (4,4,4), got %+v", store.KPs)
	}
}
