package simulation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/logging"
	"github.com/roach88/humam/internal/network"
)

// waitDelay bounds how long an interrupted engine may keep its output
// pipes open.
const waitDelay = 2 * time.Second

// SpikeHeader is the CSV header of exec engine output files.
var SpikeHeader = []string{"neuron_id", "spike_time"}

// Exec runs an external simulator as
//
//	<command...> <network-dir> <output-dir> <duration> <seed> <threads>
//
// The network directory holds the stored network files. The simulator must
// write one <population-key>.csv per population (columns neuron_id,
// spike_time) into the output directory.
type Exec struct {
	Command []string
	Logger  *slog.Logger
}

type execHandle struct {
	net  *network.Artifact
	root string
}

func (h *execHandle) Close() error {
	return os.RemoveAll(h.root)
}

// Build implements Engine by exporting the network into a scratch directory.
func (e *Exec) Build(ctx context.Context, net *network.Artifact) (Handle, error) {
	const op = "simulation.Exec.Build"
	if len(e.Command) == 0 {
		return nil, fault.Configf(op, "no command")
	}
	files, err := network.Encode(net)
	if err != nil {
		return nil, err
	}
	root, err := os.MkdirTemp("", "humam-exec-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	h := &execHandle{net: net, root: root}
	for _, name := range files.Names() {
		path := filepath.Join(root, "network", filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			h.Close()
			return nil, err
		}
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// Run implements Engine.
func (e *Exec) Run(ctx context.Context, h Handle, p Params) (*Spikes, error) {
	const op = "simulation.Exec.Run"
	eh, ok := h.(*execHandle)
	if !ok {
		return nil, fmt.Errorf("exec: foreign handle %T", h)
	}
	netDir := filepath.Join(eh.root, "network")
	outDir, err := os.MkdirTemp(eh.root, "output-")
	if err != nil {
		return nil, err
	}

	args := append(e.Command[1:len(e.Command):len(e.Command)],
		netDir, outDir,
		strconv.FormatFloat(p.Duration, 'g', -1, 64),
		strconv.FormatInt(p.Seed, 10),
		strconv.Itoa(p.Threads))
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = waitDelay

	e.logger().Debug("starting external engine", "command", cmd.String())
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fault.Wrap(fault.ExternalEngine, op, ctxErr, "engine interrupted")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fault.Wrap(fault.ExternalEngine, op, err, "engine exited with code %d: %s", exitErr.ExitCode(), tail(output.Bytes(), 512))
		}
		return nil, fault.Wrap(fault.ExternalEngine, op, err, "start engine")
	}
	e.logger().Debug("external engine finished", "output_bytes", output.Len())

	spikes := &Spikes{
		Duration: p.Duration,
		Neurons:  eh.net.Neurons.Clone(),
		Trains:   make(map[anatomy.PopulationKey]*Train, len(eh.net.Neurons)),
	}
	for _, k := range eh.net.Neurons.Keys() {
		t, err := readSpikeCSV(filepath.Join(outDir, k.String()+".csv"))
		if err != nil {
			return nil, fault.Wrap(fault.ExternalEngine, op, err, "output of %s", k)
		}
		t.Sort()
		spikes.Trains[k] = t
	}
	if err := spikes.Validate(); err != nil {
		return nil, fault.Wrap(fault.ExternalEngine, op, err, "invalid engine output")
	}
	return spikes, nil
}

func (e *Exec) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func readSpikeCSV(path string) (*Train, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := anatomy.ReadTable(f, SpikeHeader)
	if err != nil {
		return nil, err
	}
	t := &Train{}
	for i, row := range rows {
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid neuron id %q", i+2, row[0])
		}
		tm, err := anatomy.ParseFloat(row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		t.Append(id, tm)
	}
	return t, nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
