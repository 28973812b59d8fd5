package pulse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Code
	}{
		{"single", "[560, 560, 1690]", []Code{{560, 560, 1690}}},
		{"multiple", "[[560, 560, 560], [9000, 4500, 560]]", []Code{{560, 560, 560}, {9000, 4500, 560}}},
		{"padded", "\n  [1, 2, 3]\n", []Code{{1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCodes([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCodesRejectsNonArrays(t *testing.T) {
	for _, in := range []string{"", "{}", `"560"`, "560", "[560, \"x\"]", "[[1], 2]"} {
		_, err := ParseCodes([]byte(in))
		assert.ErrorIs(t, err, ErrNotArray, "input %q", in)
		assert.True(t, IsConfigError(err), "input %q", in)
	}
}

func TestParseCodesRejectsEmptyFile(t *testing.T) {
	for _, in := range []string{"[]", " [ ]\n"} {
		codes, err := ParseCodes([]byte(in))
		assert.Nil(t, codes)
		assert.ErrorIs(t, err, ErrNoSamples, "input %q", in)
		assert.True(t, IsConfigError(err), "input %q", in)
	}
}

func TestCodeValidate(t *testing.T) {
	assert.NoError(t, Code{}.Validate())
	assert.NoError(t, Code{0, 4500, math.MaxUint32}.Validate())

	for _, c := range []Code{{-500, 300, 500}, {500, -1, 500}, {math.NaN()}, {560, math.MaxUint32 + 1, 560}, {math.Inf(1)}} {
		assert.ErrorIs(t, c.Validate(), ErrInvalidDuration, "code %v", c)
	}
}

func TestMarshalCode(t *testing.T) {
	b, err := MarshalCode(Code{562, 562, 1686})
	require.NoError(t, err)
	assert.Equal(t, "[562,562,1686]", string(b))

	b, err = MarshalCode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = MarshalCodes([]Code{{1}, {2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, "[[1],[2,3,4]]", string(b))
}

func TestCodeHelpers(t *testing.T) {
	c := Code{561.6, 560.2, 1685.5}
	assert.Equal(t, 3, c.Len())
	assert.InDelta(t, 2807.3, c.Duration(), 1e-9)
	assert.Equal(t, Code{562, 560, 1686}, c.Rounded())
	assert.Equal(t, "[1,2.5]", Code{1, 2.5}.String())
}
