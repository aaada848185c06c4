package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskReference(t *testing.T) {
	require.Equal(t, "", MaskReference("  "))
	require.Equal(t, "****", MaskReference("123"))
	require.Equal(t, "****6789", MaskReference("CHQ-000123456789"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"reference": "TRX-99887766",
		"amount":    "100.00",
		" ":         "dropped",
		"nested":    map[string]any{"cheque_number": "00012345"},
	})

	require.Equal(t, "****7766", out["reference"])
	require.Equal(t, "100.00", out["amount"])
	require.NotContains(t, out, " ")
	require.Equal(t, map[string]any{"cheque_number": "****2345"}, out["nested"])
}
