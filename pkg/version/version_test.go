package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion_LdflagsWin(t *testing.T) {
	prev := version
	t.Cleanup(func() { version = prev })

	version = "v0.3.0"
	require.Equal(t, "v0.3.0", Version())
}
