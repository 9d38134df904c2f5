package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBuild_Gauges(t *testing.T) {
	b := NewBuild()
	b.Items.Set(3)
	b.BitmapBits.Set(29)
	b.HashFunctions.Set(7)

	require.Equal(t, 3.0, testutil.ToFloat64(b.Items))
	require.Equal(t, 29.0, testutil.ToFloat64(b.BitmapBits))

	expected := `
# HELP mkbloom_hash_functions Number of hash rounds per item (k).
# TYPE mkbloom_hash_functions gauge
mkbloom_hash_functions 7
`
	require.NoError(t, testutil.GatherAndCompare(b.Gatherer(), strings.NewReader(expected), "mkbloom_hash_functions"))
}

func TestBuild_ObservePhase(t *testing.T) {
	b := NewBuild()
	b.ObservePhase("count", time.Now().Add(-2*time.Second))

	got := testutil.ToFloat64(b.Duration.WithLabelValues("count"))
	require.GreaterOrEqual(t, got, 2.0)
	require.Equal(t, 1, testutil.CollectAndCount(b.Duration))
}

func TestBuild_WriteTextfile(t *testing.T) {
	b := NewBuild()
	b.SetBits.Set(12)
	b.ObservePhase("populate", time.Now())

	path := filepath.Join(t.TempDir(), "mkbloom.prom")
	require.NoError(t, b.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "mkbloom_set_bits 12")
	require.Contains(t, text, `mkbloom_phase_duration_seconds{phase="populate"}`)
	require.NotContains(t, text, "go_goroutines")
}
