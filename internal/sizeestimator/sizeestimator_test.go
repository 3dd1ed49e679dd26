package sizeestimator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateSize_HeaderPlusFields(t *testing.T) {
	e := NewDefault()

	shape := ClassShape{ClassName: "Point", Fields: []FieldKind{FieldInt32, FieldInt32}}
	// header 16 + 4 + 4 = 24, already 8-aligned
	require.Equal(t, uint64(24), e.EstimateSize(shape))
}

func TestEstimateSize_RoundsUpToAlignment(t *testing.T) {
	e := NewDefault()

	shape := ClassShape{ClassName: "Flag", Fields: []FieldKind{FieldBool}}
	// header 16 + 1 = 17, rounds to 24
	require.Equal(t, uint64(24), e.EstimateSize(shape))
}

type fixedEstimator struct{ size uint64 }

func (f fixedEstimator) EstimateSize(ClassShape) uint64 { return f.size }

func TestEstimateSize_OverrideTakesPriority(t *testing.T) {
	e := NewDefault()
	e.RegisterOverride("Special", fixedEstimator{size: 999})

	shape := ClassShape{ClassName: "Special", Fields: []FieldKind{FieldInt64}}
	require.Equal(t, uint64(999), e.EstimateSize(shape))
}
