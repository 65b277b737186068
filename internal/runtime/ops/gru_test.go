package ops

import "testing"

// With zero weights every gate is sigmoid(0) = 0.5 and the candidate is
// tanh(0) = 0, so each step halves the hidden state.
func zeroGRU(t *testing.T, steps, dirs int64) GRUOperands {
	t.Helper()

	return GRUOperands{
		Input:           mustTensorT(t, make([]float32, steps), []int64{steps, 1, 1}),
		Weight:          mustTensorT(t, make([]float32, dirs*3), []int64{dirs, 3, 1}),
		RecurrentWeight: mustTensorT(t, make([]float32, dirs*3), []int64{dirs, 3, 1}),
		InitialHidden:   mustTensorT(t, onesT(int(dirs)), []int64{dirs, 1, 1}),
	}
}

func onesT(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}

	return out
}

func TestGRUHalvesStateWithZeroWeights(t *testing.T) {
	p := DefaultGRUParams(3, 1)
	p.ReturnSequence = true

	out, err := GRU(zeroGRU(t, 3, 1), p, Float32)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("outputs = %d, want 2", len(out))
	}

	if got := out[0].Data(); !equalApprox(got, []float32{0.125}, 0) {
		t.Fatalf("hidden = %v, want [0.125]", got)
	}

	if got := out[1].Shape(); !equalShapeT(got, []int64{3, 1, 1, 1}) {
		t.Fatalf("sequence shape = %v", got)
	}

	if got := out[1].Data(); !equalApprox(got, []float32{0.5, 0.25, 0.125}, 0) {
		t.Fatalf("sequence = %v", got)
	}
}

func TestGRUBothDirectionsSequenceOrder(t *testing.T) {
	p := DefaultGRUParams(2, 1)
	p.Direction = "both"
	p.ReturnSequence = true

	out, err := GRU(zeroGRU(t, 2, 2), p, Float32)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	// The backward direction reaches t=1 first, so its slot at t=1 holds 0.5.
	want := []float32{0.5, 0.25, 0.25, 0.5}
	if got := out[1].Data(); !equalApprox(got, want, 0) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}

	if got := out[0].Data(); !equalApprox(got, []float32{0.25, 0.25}, 0) {
		t.Fatalf("hidden = %v", got)
	}
}

func TestGRUUpdateGateFromBias(t *testing.T) {
	ops := zeroGRU(t, 1, 1)
	// A large z bias saturates the update gate so the state carries over.
	ops.Bias = mustTensorT(t, []float32{100, 0, 0}, []int64{1, 3})

	out, err := GRU(ops, DefaultGRUParams(1, 1), Float32)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	if got := out[0].Data(); !equalApprox(got, []float32{1}, 0) {
		t.Fatalf("hidden = %v, want [1]", got)
	}

	p := DefaultGRUParams(1, 1)
	p.Layout = "rzn"

	// Under rzn the same bias drives the reset gate instead.
	out, err = GRU(ops, p, Float32)
	if err != nil {
		t.Fatalf("gru rzn: %v", err)
	}

	if got := out[0].Data(); !equalApprox(got, []float32{0.5}, 0) {
		t.Fatalf("hidden = %v, want [0.5]", got)
	}
}

func TestGRUCandidateActivation(t *testing.T) {
	ops := zeroGRU(t, 1, 1)
	ops.InitialHidden = nil
	ops.Bias = mustTensorT(t, []float32{0, 0, 2}, []int64{1, 3})

	p := DefaultGRUParams(1, 1)
	relu, err := Unary("relu", UnaryParams{})
	if err != nil {
		t.Fatalf("relu: %v", err)
	}

	p.Activations[1] = relu

	out, err := GRU(ops, p, Float32)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	// h' = (1 - 0.5) * relu(2) + 0.5 * 0
	if got := out[0].Data(); !equalApprox(got, []float32{1}, 0) {
		t.Fatalf("hidden = %v, want [1]", got)
	}
}

func TestGRURoundsToHalf(t *testing.T) {
	ops := zeroGRU(t, 1, 1)
	ops.InitialHidden = mustTensorT(t, []float32{0.1}, []int64{1, 1, 1})

	out, err := GRU(ops, DefaultGRUParams(1, 1), Float16)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	want := Float16(Float16(0.5) * 0.1)
	if got := out[0].Data(); got[0] != want {
		t.Fatalf("hidden = %v, want %v", got, want)
	}
}

func TestGRUValidatesShapes(t *testing.T) {
	ops := zeroGRU(t, 2, 1)
	ops.RecurrentWeight = mustTensorT(t, seqDataT(6), []int64{1, 3, 2})

	_, err := GRU(ops, DefaultGRUParams(2, 1), Float32)
	assertErrContains(t, err, "recurrentWeight shape")

	_, err = GRU(zeroGRU(t, 2, 1), DefaultGRUParams(3, 1), Float32)
	assertErrContains(t, err, "steps")

	p := DefaultGRUParams(2, 1)
	p.Direction = "sideways"
	_, err = GRU(zeroGRU(t, 2, 1), p, Float32)
	assertErrContains(t, err, "unknown direction")
}
