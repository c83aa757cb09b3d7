package simulation

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/testutil"
)

// fakeSimulator writes two spikes for neuron 0 of every population listed in
// the exported neurons.csv.
const fakeSimulator = `#!/bin/sh
net="$1"; out="$2"
tail -n +2 "$net/neurons.csv" | while IFS=, read area layer pop n; do
  printf 'neuron_id,spike_time\n0,2.5\n0,1.5\n' > "$out/$area.L$layer.$pop.csv"
done
`

func shellEngine(t *testing.T, script string) *Exec {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("needs sh")
	}
	path := testutil.WriteFile(t, t.TempDir(), "sim.sh", script)
	return &Exec{Command: []string{"sh", path}}
}

func runExec(ctx context.Context, t *testing.T, e *Exec) (*Spikes, error) {
	t.Helper()
	h, err := e.Build(context.Background(), fixtureNetwork(t))
	require.NoError(t, err)
	defer h.Close()
	return e.Run(ctx, h, Params{Duration: 100, Seed: 1, Threads: 1, Engine: EngineExec, Command: e.Command})
}

func TestExecReadsEngineOutput(t *testing.T) {
	spikes, err := runExec(context.Background(), t, shellEngine(t, fakeSimulator))
	require.NoError(t, err)

	assert.Len(t, spikes.Trains, 12)
	for k, train := range spikes.Trains {
		assert.Equal(t, []float64{1.5, 2.5}, train.Times, k.String())
	}
	assert.Equal(t, 24, spikes.Total())
}

func TestExecFailures(t *testing.T) {
	tests := map[string]string{
		"non-zero exit":  "#!/bin/sh\necho boom >&2\nexit 3\n",
		"missing output": "#!/bin/sh\nexit 0\n",
		"bad output": `#!/bin/sh
tail -n +2 "$1/neurons.csv" | while IFS=, read area layer pop n; do
  printf 'neuron_id,spike_time\n-1,2.5\n' > "$2/$area.L$layer.$pop.csv"
done
`,
	}
	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runExec(context.Background(), t, shellEngine(t, script))
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.ExternalEngine), err.Error())
		})
	}
}

func TestExecInterrupted(t *testing.T) {
	e := shellEngine(t, "#!/bin/sh\nexec sleep 10\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runExec(ctx, t, e)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ExternalEngine))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
