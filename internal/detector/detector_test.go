package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

const epsilon = 1e-9

func TestFaceLandmarks_Complete(t *testing.T) {
	t.Run("full set is complete", func(t *testing.T) {
		face := NeutralFaceLandmarks()
		if !face.Complete() {
			t.Errorf("expected complete face, got %d points", len(face.Points))
		}
	})

	t.Run("truncated set is incomplete", func(t *testing.T) {
		face := TruncatedLandmarks()
		if face.Complete() {
			t.Error("truncated face should not be complete")
		}
		if face.FaceWidth() != 0 {
			t.Errorf("truncated face width = %f, want 0", face.FaceWidth())
		}
		if _, _, _, _, ok := face.Bounds(); ok {
			t.Error("truncated face should not report bounds")
		}
	})

	t.Run("nil face is incomplete", func(t *testing.T) {
		var face *FaceLandmarks
		if face.Complete() {
			t.Error("nil face should not be complete")
		}
	})
}

func TestSyntheticFace_Neutral(t *testing.T) {
	face := NeutralFaceLandmarks()

	t.Run("right eye is on the image left", func(t *testing.T) {
		if face.Points[RightEyeOuter].X >= face.Points[LeftEyeOuter].X {
			t.Error("right eye outer corner should have smaller x than left eye outer corner")
		}
	})

	t.Run("iris centered between corners", func(t *testing.T) {
		mid := (face.Points[RightEyeInner].X + face.Points[RightEyeOuter].X) / 2
		if math.Abs(face.Points[RightIris].X-mid) > epsilon {
			t.Errorf("right iris x = %f, want %f", face.Points[RightIris].X, mid)
		}
	})

	t.Run("nose below eyes in image", func(t *testing.T) {
		if face.Points[NoseTip].Y <= face.Points[RightEyeInner].Y {
			t.Error("nose tip should be below the eyes")
		}
	})

	t.Run("identity matrix", func(t *testing.T) {
		if face.Matrix == nil {
			t.Fatal("expected transformation matrix")
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				want := 0.0
				if i == j {
					want = 1
				}
				if math.Abs(face.Matrix[j*4+i]-want) > 1e-9 {
					t.Errorf("m[%d][%d] = %f, want %f", i, j, face.Matrix[j*4+i], want)
				}
			}
		}
	})

	t.Run("width matches canonical geometry", func(t *testing.T) {
		if math.Abs(face.FaceWidth()-0.16) > 1e-9 {
			t.Errorf("FaceWidth() = %f, want 0.16", face.FaceWidth())
		}
	})
}

func TestSyntheticFace_Yaw(t *testing.T) {
	face := SyntheticFace(Pose{Yaw: 20})
	neutral := NeutralFaceLandmarks()

	// Positive yaw turns the head toward the viewer's right, moving the nose to +x.
	if face.Points[NoseTip].X <= neutral.Points[NoseTip].X {
		t.Errorf("nose x = %f, expected greater than neutral %f", face.Points[NoseTip].X, neutral.Points[NoseTip].X)
	}
}

func TestSyntheticFace_ClosedEyes(t *testing.T) {
	open := NeutralFaceLandmarks()
	closed := ClosedEyesLandmarks()

	openGap := distance2D(open.Points[RightEyeUpper], open.Points[RightEyeLower])
	closedGap := distance2D(closed.Points[RightEyeUpper], closed.Points[RightEyeLower])
	if closedGap >= openGap {
		t.Errorf("closed lid gap %f should be smaller than open gap %f", closedGap, openGap)
	}
}

func TestPrimary(t *testing.T) {
	if Primary(nil) != nil {
		t.Error("expected nil for no faces")
	}

	faces := []FaceLandmarks{{Score: 0.4}, {Score: 0.9}, {Score: 0.7}}
	best := Primary(faces)
	if best == nil || best.Score != 0.9 {
		t.Errorf("expected face with score 0.9, got %+v", best)
	}
}

func TestParseResponse(t *testing.T) {
	t.Run("faces with matrix", func(t *testing.T) {
		line := []byte(`{"faces":[{"points":[{"x":0.1,"y":0.2,"z":-0.01}],"matrix":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1],"score":0.9}]}` + "\n")
		faces, err := parseResponse(line)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if len(faces) != 1 {
			t.Fatalf("expected 1 face, got %d", len(faces))
		}
		if faces[0].Points[0].X != 0.1 || faces[0].Points[0].Y != 0.2 {
			t.Errorf("unexpected point %+v", faces[0].Points[0])
		}
		if faces[0].Matrix == nil || faces[0].Matrix[15] != 1 {
			t.Error("expected matrix to be decoded")
		}
	})

	t.Run("short matrix dropped", func(t *testing.T) {
		faces, err := parseResponse([]byte(`{"faces":[{"points":[],"matrix":[1,2,3]}]}`))
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if faces[0].Matrix != nil {
			t.Error("malformed matrix should be dropped")
		}
	})

	t.Run("service error", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"faces":[],"error":"model not loaded"}`))
		if err == nil || !strings.Contains(err.Error(), "model not loaded") {
			t.Errorf("expected service error, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{not json`)); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("jpeg-bytes")

	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame() error = %v", err)
	}

	out := buf.Bytes()
	if got := binary.BigEndian.Uint32(out[:4]); got != uint32(len(payload)) {
		t.Errorf("length prefix = %d, want %d", got, len(payload))
	}
	if string(out[4:]) != string(payload) {
		t.Errorf("payload = %q, want %q", out[4:], payload)
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty faces by default", func(t *testing.T) {
		mock := NewMockDetector()

		faces, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if faces != nil {
			t.Errorf("expected nil faces, got %v", faces)
		}
	})

	t.Run("returns configured faces", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFaces([]FaceLandmarks{NeutralFaceLandmarks()})

		faces, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(faces) != 1 {
			t.Errorf("expected 1 face, got %d", len(faces))
		}
		if mock.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		faces, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if faces != nil {
			t.Errorf("expected nil faces when error is set, got %v", faces)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
	})
}
