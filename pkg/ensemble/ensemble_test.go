package ensemble

import "testing"

func inputVec(fill float64) [inputWidth]float64 {
	var v [inputWidth]float64
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEnsemble_PredictStaysInUnitRange(t *testing.T) {
	e := New(1)
	got := e.Predict(inputVec(0.5))
	if got < 0 || got > 1 {
		t.Fatalf("Predict() = %v, want within [0,1]", got)
	}
}

func TestEnsemble_LearnMovesPredictionTowardTarget(t *testing.T) {
	e := New(1)
	f := inputVec(0.7)
	before := e.Predict(f)

	for i := 0; i < 500; i++ {
		e.Learn(f, 0.9)
	}
	after := e.Predict(f)

	if absDiff(after, 0.9) >= absDiff(before, 0.9) {
		t.Fatalf("expected repeated Learn calls to move the prediction closer to the target: before=%v after=%v", before, after)
	}
}

func TestEnsemble_WeightsStartUniformAndSumToOne(t *testing.T) {
	e := New(1)
	w := e.Weights()
	for i, v := range w {
		if v != 1.0/float64(Size) {
			t.Errorf("weights[%d] = %v, want %v initially", i, v, 1.0/float64(Size))
		}
	}
}

func TestEnsemble_LearnBatchIsEquivalentToSequentialLearn(t *testing.T) {
	feats := [][inputWidth]float64{inputVec(0.1), inputVec(0.2), inputVec(0.3)}
	targets := []float64{0.2, 0.4, 0.6}

	batch := New(42)
	batch.LearnBatch(feats, targets)

	sequential := New(42)
	for i := range feats {
		sequential.Learn(feats[i], targets[i])
	}

	bw := batch.Weights()
	sw := sequential.Weights()
	for i := range bw {
		if absDiff(bw[i], sw[i]) > 1e-9 {
			t.Fatalf("LearnBatch weights diverged from sequential Learn at index %d: %v vs %v", i, bw[i], sw[i])
		}
	}
}

func TestEnsemble_MarshalUnmarshalRoundTrips(t *testing.T) {
	e := New(7)
	e.Learn(inputVec(0.4), 0.6)

	blob, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	restored := New(0)
	if err := restored.Unmarshal(blob); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	want := e.Predict(inputVec(0.4))
	got := restored.Predict(inputVec(0.4))
	if absDiff(want, got) > 1e-9 {
		t.Fatalf("Predict() after round trip = %v, want %v", got, want)
	}
}

func TestEnsemble_UnmarshalRejectsBadMagic(t *testing.T) {
	e := New(0)
	if err := e.Unmarshal([]byte("not a valid blob at all")); err == nil {
		t.Fatal("expected an error for a blob with a bad magic")
	}
}

func TestEnsemble_UnmarshalRejectsCorruptedChecksum(t *testing.T) {
	e := New(3)
	blob, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF

	restored := New(0)
	if err := restored.Unmarshal(blob); err == nil {
		t.Fatal("expected an error for a blob whose body was tampered with after checksumming")
	}
}

func absDiff(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}
