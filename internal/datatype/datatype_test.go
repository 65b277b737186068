package datatype

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	for _, dt := range All {
		got, err := Parse(dt.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", dt.String(), err)
		}

		if got != dt {
			t.Fatalf("Parse(%q) = %v; want %v", dt.String(), got, dt)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("bfloat16")
	if !errors.Is(err, ErrUnsupportedDataType) {
		t.Fatalf("Parse(bfloat16) error = %v; want ErrUnsupportedDataType", err)
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList([]string{"float16", " int4"})
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}

	if len(got) != 2 || got[0] != Float16 || got[1] != Int4 {
		t.Fatalf("ParseList = %v; want [float16 int4]", got)
	}

	if _, err := ParseList([]string{"int8", "float17"}); !errors.Is(err, ErrUnsupportedDataType) {
		t.Fatalf("ParseList(float17) error = %v; want ErrUnsupportedDataType", err)
	}
}

func TestByteLength(t *testing.T) {
	tests := []struct {
		dt    DataType
		count int
		want  int
	}{
		{Float32, 3, 12},
		{Float16, 3, 6},
		{Int64, 2, 16},
		{Uint8, 5, 5},
		{Int4, 3, 2},
		{Uint4, 4, 2},
		{Uint4, 1, 1},
		{Int4, 0, 0},
	}

	for _, tt := range tests {
		if got := tt.dt.ByteLength(tt.count); got != tt.want {
			t.Errorf("%v.ByteLength(%d) = %d; want %d", tt.dt, tt.count, got, tt.want)
		}
	}
}

func TestHolds(t *testing.T) {
	tests := []struct {
		dst, src DataType
		want     bool
	}{
		{Float32, Float16, true},
		{Float16, Float32, false},
		{Int32, Int8, true},
		{Uint32, Int8, false},
		{Int8, Uint8, false},
		{Int32, Uint8, true},
		{Uint8, Uint4, true},
		{Int8, Int4, true},
		{Float32, Int8, false},
	}

	for _, tt := range tests {
		if got := tt.dst.Holds(tt.src); got != tt.want {
			t.Errorf("%v.Holds(%v) = %v; want %v", tt.dst, tt.src, got, tt.want)
		}
	}
}

func TestFindCompatible(t *testing.T) {
	castAll := All

	tests := []struct {
		name      string
		dt        DataType
		supported []DataType
		castIn    []DataType
		want      DataType
		wantOK    bool
	}{
		{"int8 widens to int32", Int8, []DataType{Float32, Uint32, Int32}, castAll, Int32, true},
		{"uint8 widens to uint32", Uint8, []DataType{Int32, Uint32}, castAll, Uint32, true},
		{"int4 widens to int8", Int4, []DataType{Uint8, Int8, Int32}, castAll, Int8, true},
		{"float16 widens to float32", Float16, []DataType{Float32}, castAll, Float32, true},
		{"no wider kind", Int64, []DataType{Int32, Float32}, castAll, Invalid, false},
		{"cast does not accept source", Int8, []DataType{Int32}, []DataType{Int32}, Invalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindCompatible(tt.dt, tt.supported, tt.castIn, castAll)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("FindCompatible(%v) = (%v, %v); want (%v, %v)", tt.dt, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTextMarshaling(t *testing.T) {
	var dt DataType
	if err := dt.UnmarshalText([]byte("uint4")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}

	if dt != Uint4 {
		t.Fatalf("dt = %v; want uint4", dt)
	}

	if _, err := Invalid.MarshalText(); err == nil {
		t.Fatal("MarshalText(Invalid) expected error")
	}
}
