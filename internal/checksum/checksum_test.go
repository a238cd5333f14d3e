package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumFileMatchesSum(t *testing.T) {
	data := []byte("pixels")
	p := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(p, data, 0o644))

	got, err := SumFile(p)
	require.NoError(t, err)
	assert.Equal(t, Sum(data), got)
}

func TestSumFileMissing(t *testing.T) {
	_, err := SumFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
