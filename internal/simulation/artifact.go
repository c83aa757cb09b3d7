package simulation

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/store"
)

// Artifact file names.
const (
	FilePopulations = "populations.csv"
	FileParameters  = "parameters.json"
	FileHash        = "hash.txt"
	SpikeDir        = "spikes"
)

var populationHeader = []string{"area", "layer", "population", "neurons", "spikes"}

// SpikeFile returns the artifact file name of k's spike train.
func SpikeFile(k anatomy.PopulationKey) string {
	return path.Join(SpikeDir, k.String()+".arrow")
}

// Artifact is a stored simulation.
type Artifact struct {
	Hash    param.Identifier
	Network param.Identifier
	Params  Params
	Spikes  *Spikes
}

// Tree returns the parameter tree that identifies a.
func (a *Artifact) Tree() param.Object {
	return param.SimulationTree(a.Network, a.Params.Tree())
}

// Encode serializes a into artifact files.
func Encode(a *Artifact) (store.Files, error) {
	params, err := param.MarshalCanonical(a.Tree())
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	files := store.Files{
		FileParameters: params,
		FileHash:       []byte(string(a.Hash) + "\n"),
	}

	var pops bytes.Buffer
	cw := csv.NewWriter(&pops)
	if err := cw.Write(populationHeader); err != nil {
		return nil, err
	}
	for _, k := range a.Spikes.Neurons.Keys() {
		t := a.Spikes.Trains[k]
		if t == nil {
			return nil, fmt.Errorf("encode: no spike train for %s", k)
		}
		row := append(anatomy.KeyFields(k),
			strconv.FormatInt(a.Spikes.Neurons[k], 10),
			strconv.Itoa(t.Len()))
		if err := cw.Write(row); err != nil {
			return nil, err
		}
		data, err := EncodeTrain(t)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		files[SpikeFile(k)] = data
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	files[FilePopulations] = pops.Bytes()
	return files, nil
}

// Decode parses artifact files and checks their consistency.
func Decode(files store.Files) (*Artifact, error) {
	const op = "simulation.Decode"
	for _, name := range []string{FilePopulations, FileParameters, FileHash} {
		if _, ok := files[name]; !ok {
			return nil, fault.Integrityf(op, "missing %s", name)
		}
	}

	tree, err := param.UnmarshalJSONValue(files[FileParameters])
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	obj, ok := tree.(param.Object)
	if !ok {
		return nil, fault.Integrityf(op, "%s is not a mapping", FileParameters)
	}
	want, err := param.Hash(param.DomainSimulation, obj)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	got := param.Identifier(strings.TrimSpace(string(files[FileHash])))
	if got != want {
		return nil, fault.Integrityf(op, "hash.txt %s does not match parameters %s", got.Short(), want.Short())
	}

	netHash, err := obj.Str("network", "")
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	simTree, err := obj.Sub("simulation")
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	p, err := ParseParams(simTree)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}

	rows, err := anatomy.ReadTable(bytes.NewReader(files[FilePopulations]), populationHeader)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FilePopulations)
	}
	spikes := &Spikes{
		Duration: p.Duration,
		Neurons:  make(anatomy.NeuronTable, len(rows)),
		Trains:   make(map[anatomy.PopulationKey]*Train, len(rows)),
	}
	listed := make(map[string]bool, len(rows))
	for i, row := range rows {
		k, err := anatomy.NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fault.Wrap(fault.Integrity, op, err, "%s row %d", FilePopulations, i+2)
		}
		n, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil || n < 0 {
			return nil, fault.Integrityf(op, "%s row %d: invalid neuron count %q", FilePopulations, i+2, row[3])
		}
		count, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fault.Integrityf(op, "%s row %d: invalid spike count %q", FilePopulations, i+2, row[4])
		}
		if listed[SpikeFile(k)] {
			return nil, fault.Integrityf(op, "%s row %d: duplicate population %s", FilePopulations, i+2, k)
		}
		listed[SpikeFile(k)] = true
		data, ok := files[SpikeFile(k)]
		if !ok {
			return nil, fault.Integrityf(op, "missing %s", SpikeFile(k))
		}
		t, err := DecodeTrain(data)
		if err != nil {
			return nil, fault.Wrap(fault.Integrity, op, err, "%s", SpikeFile(k))
		}
		if t.Len() != count {
			return nil, fault.Integrityf(op, "%s has %d spikes, %s says %d", SpikeFile(k), t.Len(), FilePopulations, count)
		}
		spikes.Neurons[k] = n
		spikes.Trains[k] = t
	}
	for name := range files {
		if strings.HasPrefix(name, SpikeDir+"/") && !listed[name] {
			return nil, fault.Integrityf(op, "%s is not listed in %s", name, FilePopulations)
		}
	}
	if err := spikes.Validate(); err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "spike trains")
	}

	return &Artifact{
		Hash:    got,
		Network: param.Identifier(netHash),
		Params:  p,
		Spikes:  spikes,
	}, nil
}

// CheckNetwork reports an integrity error unless a was simulated from net:
// the parent hash must match and every population of the network must be
// present with its neuron count, and no other.
func (a *Artifact) CheckNetwork(net *network.Artifact) error {
	const op = "simulation.CheckNetwork"
	if a.Network != net.Hash {
		return fault.Integrityf(op, "simulation %s names network %s, stored under %s",
			a.Hash.Short(), a.Network.Short(), net.Hash.Short())
	}
	for k, n := range net.Neurons {
		got, ok := a.Spikes.Neurons[k]
		if !ok {
			return fault.Integrityf(op, "simulation %s has no population %s", a.Hash.Short(), k)
		}
		if got != n {
			return fault.Integrityf(op, "simulation %s: %s has %d neurons, network has %d", a.Hash.Short(), k, got, n)
		}
	}
	for k := range a.Spikes.Neurons {
		if _, ok := net.Neurons[k]; !ok {
			return fault.Integrityf(op, "simulation %s: population %s is not in the network", a.Hash.Short(), k)
		}
	}
	return nil
}
