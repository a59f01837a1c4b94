package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"0", 0},
		{"1024", 1024},
		{"1b", 1},
		{"10MB", 10 * MB},
		{"10MiB", 10 * MiB},
		{"10mib", 10 * MiB},
		{"1Gi", GiB},
		{"2g", 2 * GB},
		{"1.5KiB", 1536},
		{" 100 MB ", 100 * MB},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "MB", "ten megabytes", "10XB", "-5MB"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var s Size
	require.NoError(t, s.UnmarshalText([]byte("5MiB")))
	assert.Equal(t, 5*MiB, s)

	assert.Error(t, s.UnmarshalText([]byte("nope")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", Size(512).String())
	assert.Equal(t, "1.00KiB", KiB.String())
	assert.Equal(t, "10.00MiB", (10 * MiB).String())
	assert.Equal(t, "1.00GiB", GiB.String())
}
