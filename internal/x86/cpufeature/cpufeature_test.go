package cpufeature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureLayout(t *testing.T) {
	tests := []struct {
		feature Feature
		word    Word
		bit     uint
		name    string
	}{
		{FPU, WordStd, 0, "fpu"},
		{PAE, WordStd, 6, "pae"},
		{CX8, WordStd, 8, "cx8"},
		{XMM, WordStd, 25, "sse"},
		{XMM2, WordStd, 26, "sse2"},
		{LM, WordExt, 29, "lm"},
		{K3DNOW, WordExt, 31, "3dnow"},
		{MOVBE, WordStdECX, 22, "movbe"},
		{SVM, WordExtECX, 2, "svm"},
		{LA57, WordLeaf7ECX, 16, "la57"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.word, tt.feature.Word())
			assert.Equal(t, tt.bit, tt.feature.Bit())
			assert.Equal(t, uint32(1)<<tt.bit, tt.feature.Mask())
			assert.Equal(t, tt.name, tt.feature.String())
		})
	}
}

func TestUnnamedFeatureString(t *testing.T) {
	assert.Equal(t, "2:5", feat(2, 5).String())
}

func TestLookup(t *testing.T) {
	f, err := Lookup("SSE2")
	require.NoError(t, err)
	assert.Equal(t, XMM2, f)

	f, err = Lookup(" 3:7 ")
	require.NoError(t, err)
	assert.Equal(t, feat(3, 7), f)

	_, err = Lookup("19:0")
	assert.Error(t, err)
	_, err = Lookup("0:32")
	assert.Error(t, err)
	_, err = Lookup("warp-drive")
	assert.Error(t, err)
}

func TestNamedIsOrdered(t *testing.T) {
	named := Named()
	require.NotEmpty(t, named)
	assert.Equal(t, FPU, named[0])
	for i := 1; i < len(named); i++ {
		assert.Less(t, named[i-1], named[i])
	}
	for _, f := range named {
		back, err := Lookup(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}
}

func TestSetOperations(t *testing.T) {
	s := Of(FPU, PAE, LM)
	assert.True(t, s.Has(PAE))
	assert.False(t, s.Has(CX8))
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, []Feature{FPU, PAE, LM}, s.Features())
	assert.Equal(t, "fpu pae lm", s.String())

	s.Add(CX8)
	assert.True(t, s.Has(CX8))

	diff := Of(FPU, XMM, LA57).AndNot(s)
	assert.Equal(t, Of(XMM, LA57), diff)

	assert.True(t, s.Contains(Of(FPU, LM)))
	assert.False(t, s.Contains(Of(FPU, XMM)))

	s.Merge(Of(XMM))
	assert.True(t, s.Has(XMM))

	assert.True(t, Set{}.IsZero())
	assert.False(t, s.IsZero())
}

func TestSourcesCoverPopulatedWords(t *testing.T) {
	for _, f := range Named() {
		_, ok := Sources[f.Word()]
		assert.True(t, ok, "no CPUID source for %s", f)
	}
	assert.Equal(t, Source{Leaf: 1, Register: EDX}, Sources[WordStd])
	assert.Equal(t, "ecx", Sources[WordLeaf7ECX].Register.String())
}
