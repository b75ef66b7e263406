package orientation

import (
	"errors"
	"testing"

	"mriroimask/internal/models"
)

// createTestVolume builds a volume where every voxel value is unique and
// encodes its own coordinates
func createTestVolume(d0, d1, d2 int) *models.Volume {
	v, _ := models.NewVolume(d0, d1, d2)
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			for k := 0; k < d2; k++ {
				v.Set(i, j, k, float64(i*10000+j*100+k))
			}
		}
	}
	return v
}

func assertEqualVolumes(t *testing.T, want, got *models.Volume) {
	t.Helper()
	if want.Dims != got.Dims {
		t.Fatalf("Expected dims %v, got %v", want.Dims, got.Dims)
	}
	for i := range want.Data {
		if want.Data[i] != got.Data[i] {
			t.Fatalf("Voxel %d: expected %v, got %v", i, want.Data[i], got.Data[i])
		}
	}
}

// TestPermute verifies numpy.transpose semantics
func TestPermute(t *testing.T) {
	v := createTestVolume(2, 3, 4)

	p, err := Permute(v, [3]int{1, 2, 0})
	if err != nil {
		t.Fatalf("Permute failed: %v", err)
	}
	if p.Dims != [3]int{3, 4, 2} {
		t.Fatalf("Expected dims [3 4 2], got %v", p.Dims)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				if got, want := p.At(j, k, i), v.At(i, j, k); got != want {
					t.Errorf("p[%d,%d,%d] = %v, expected %v", j, k, i, got, want)
				}
			}
		}
	}
}

func TestFlip(t *testing.T) {
	v := createTestVolume(2, 3, 4)

	for axis := 0; axis < 3; axis++ {
		f, err := Flip(v, axis)
		if err != nil {
			t.Fatalf("Flip(%d) failed: %v", axis, err)
		}
		for i := 0; i < 2; i++ {
			for j := 0; j < 3; j++ {
				for k := 0; k < 4; k++ {
					si, sj, sk := i, j, k
					switch axis {
					case 0:
						si = 1 - i
					case 1:
						sj = 2 - j
					case 2:
						sk = 3 - k
					}
					if got, want := f.At(i, j, k), v.At(si, sj, sk); got != want {
						t.Errorf("axis %d: f[%d,%d,%d] = %v, expected %v", axis, i, j, k, got, want)
					}
				}
			}
		}
	}
}

// TestToCoronal checks coronal[i, j, k] = sag[i, k, d1-1-j]
func TestToCoronal(t *testing.T) {
	sag := createTestVolume(3, 4, 5)

	cor, err := ToCoronal(sag)
	if err != nil {
		t.Fatalf("ToCoronal failed: %v", err)
	}
	if cor.Dims != [3]int{3, 5, 4} {
		t.Fatalf("Expected dims [3 5 4], got %v", cor.Dims)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 4; k++ {
				if got, want := cor.At(i, j, k), sag.At(i, k, 4-j); got != want {
					t.Errorf("cor[%d,%d,%d] = %v, expected %v", i, j, k, got, want)
				}
			}
		}
	}
}

// TestToTransversal checks transversal[i, j, k] = sag[d0-1-k, i, d2-1-j]
func TestToTransversal(t *testing.T) {
	sag := createTestVolume(3, 4, 5)

	tra, err := ToTransversal(sag)
	if err != nil {
		t.Fatalf("ToTransversal failed: %v", err)
	}
	if tra.Dims != [3]int{4, 5, 3} {
		t.Fatalf("Expected dims [4 5 3], got %v", tra.Dims)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 3; k++ {
				if got, want := tra.At(i, j, k), sag.At(2-k, i, 4-j); got != want {
					t.Errorf("tra[%d,%d,%d] = %v, expected %v", i, j, k, got, want)
				}
			}
		}
	}
}

// TestRoundTrips verifies the inverses recover the sagittal volume exactly
func TestRoundTrips(t *testing.T) {
	sag := createTestVolume(4, 3, 5)

	cor, err := ToCoronal(sag)
	if err != nil {
		t.Fatalf("ToCoronal failed: %v", err)
	}
	back, err := FromCoronal(cor)
	if err != nil {
		t.Fatalf("FromCoronal failed: %v", err)
	}
	assertEqualVolumes(t, sag, back)

	tra, err := ToTransversal(sag)
	if err != nil {
		t.Fatalf("ToTransversal failed: %v", err)
	}
	back, err = FromTransversal(tra)
	if err != nil {
		t.Fatalf("FromTransversal failed: %v", err)
	}
	assertEqualVolumes(t, sag, back)
}

func TestTransformDispatch(t *testing.T) {
	sag := createTestVolume(2, 3, 4)

	for _, o := range models.Orientations {
		got, err := Transform(sag, o)
		if err != nil {
			t.Fatalf("Transform(%v) failed: %v", o, err)
		}
		if got.Dims != TargetDims(sag.Dims, o) {
			t.Errorf("%v: expected dims %v, got %v", o, TargetDims(sag.Dims, o), got.Dims)
		}
	}

	same, _ := Transform(sag, models.Sagittal)
	same.Data[0] = -1
	if sag.Data[0] == -1 {
		t.Error("Sagittal transform should return a copy")
	}
}

func TestInverse(t *testing.T) {
	for _, order := range [][3]int{{0, 2, 1}, {1, 2, 0}, {2, 0, 1}, {0, 1, 2}} {
		inv := Inverse(order)
		for n := range order {
			if inv[order[n]] != n {
				t.Errorf("Inverse(%v) = %v is not an inverse", order, inv)
			}
		}
	}
}

func TestTransformErrors(t *testing.T) {
	bad := &models.Volume{Data: make([]float64, 3), Dims: [3]int{2, 2, 0}}
	var shapeErr *models.ShapeMismatchError

	if _, err := ToCoronal(bad); !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError from ToCoronal, got %v", err)
	}
	if _, err := ToTransversal(bad); !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError from ToTransversal, got %v", err)
	}

	v := createTestVolume(2, 2, 2)
	if _, err := Permute(v, [3]int{0, 0, 1}); !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError for invalid permutation, got %v", err)
	}
	if _, err := Flip(v, 3); !errors.As(err, &shapeErr) {
		t.Errorf("Expected ShapeMismatchError for invalid axis, got %v", err)
	}
}
