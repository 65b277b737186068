package ops

import "testing"

func TestConv2D(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int64{1, 1, 3, 3})
	filter := mustTensorT(t, []float32{1, 1, 1, 1}, []int64{1, 1, 2, 2})

	out, err := Conv2D(input, filter, nil, DefaultConv2DParams())
	if err != nil {
		t.Fatalf("conv2d: %v", err)
	}

	want := []float32{12, 16, 24, 28}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv2d = %v, want %v", got, want)
	}
}

func TestConv2DPaddingStride(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int64{1, 1, 3, 3})
	filter := mustTensorT(t, []float32{1, 1, 1, 1}, []int64{1, 1, 2, 2})

	p := DefaultConv2DParams()
	p.Padding = [4]int64{1, 1, 1, 1}
	p.Strides = [2]int64{2, 2}

	out, err := Conv2D(input, filter, nil, p)
	if err != nil {
		t.Fatalf("conv2d: %v", err)
	}

	want := []float32{1, 5, 11, 28}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv2d = %v, want %v", got, want)
	}
}

func TestConv2DChannelsLast(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int64{1, 3, 3, 1})
	filter := mustTensorT(t, []float32{1, 1, 1, 1}, []int64{2, 2, 1, 1})

	p := DefaultConv2DParams()
	p.InputLayout = "nhwc"
	p.FilterLayout = "hwio"

	out, err := Conv2D(input, filter, nil, p)
	if err != nil {
		t.Fatalf("conv2d: %v", err)
	}

	if got := out.Shape(); !equalShapeT(got, []int64{1, 2, 2, 1}) {
		t.Fatalf("shape = %v, want [1 2 2 1]", got)
	}

	want := []float32{12, 16, 24, 28}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv2d = %v, want %v", got, want)
	}
}

func TestConv2DGroupsWithBias(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4, 10, 20, 30, 40}, []int64{1, 2, 2, 2})
	filter := mustTensorT(t, []float32{1, 2}, []int64{2, 1, 1, 1})
	bias := mustTensorT(t, []float32{0.5, -1}, []int64{2})

	p := DefaultConv2DParams()
	p.Groups = 2

	out, err := Conv2D(input, filter, bias, p)
	if err != nil {
		t.Fatalf("conv2d: %v", err)
	}

	want := []float32{1.5, 2.5, 3.5, 4.5, 19, 39, 59, 79}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv2d = %v, want %v", got, want)
	}
}

func TestConv2DParallelMatchesSequential(t *testing.T) {
	input := mustTensorT(t, seqDataT(1*8*9*9), []int64{1, 8, 9, 9})
	filter := mustTensorT(t, seqDataT(16*8*3*3), []int64{16, 8, 3, 3})

	want, err := Conv2D(input, filter, nil, DefaultConv2DParams())
	if err != nil {
		t.Fatalf("conv2d sequential: %v", err)
	}

	setWorkers(t, 4)

	got, err := Conv2D(input, filter, nil, DefaultConv2DParams())
	if err != nil {
		t.Fatalf("conv2d parallel: %v", err)
	}

	if !equalApprox(got.Data(), want.Data(), 0) {
		t.Fatal("parallel conv2d differs from sequential")
	}
}

func TestConv2DErrors(t *testing.T) {
	input := mustTensorT(t, seqDataT(9), []int64{1, 1, 3, 3})
	filter := mustTensorT(t, seqDataT(4), []int64{1, 1, 2, 2})

	p := DefaultConv2DParams()
	p.FilterLayout = "xyzw"
	_, err := Conv2D(input, filter, nil, p)
	assertErrContains(t, err, "unsupported filter layout")

	p = DefaultConv2DParams()
	p.Groups = 2
	_, err = Conv2D(input, filter, nil, p)
	assertErrContains(t, err, "divisible by groups")

	big := mustTensorT(t, seqDataT(16), []int64{1, 1, 4, 4})
	_, err = Conv2D(input, big, nil, DefaultConv2DParams())
	assertErrContains(t, err, "exceeds padded input")
}
