package network

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/scaling"
	"github.com/roach88/humam/internal/store"
)

// Artifact file names.
const (
	FileNeurons      = "neurons.csv"
	FileSynapses     = "synapses.csv"
	FileWeights      = "weights.csv"
	FileCompensation = "compensation.csv"
	FileExternal     = "external.csv"
	FileRates        = "rates.csv"
	FileParameters   = "parameters.json"
	FileHash         = "hash.txt"
)

var (
	weightHeader       = append(anatomy.SynapseHeader[:6:6], "weight")
	compensationHeader = []string{"area", "layer", "population", "weight_factor", "dc"}
	externalHeader     = []string{"area", "layer", "population", "k_ext"}
)

// Artifact is a stored, down-scaled network.
type Artifact struct {
	Hash       param.Identifier
	Parameters param.Object

	Neurons      anatomy.NeuronTable
	Synapses     anatomy.SynapseTable
	Weights      scaling.WeightTable
	Compensation scaling.CompensationRecord
	External     scaling.ExternalTable
	Rates        anatomy.RateTable

	Factors scaling.Factors
	Policy  string
}

// Areas returns the areas of the network in sorted order.
func (a *Artifact) Areas() []string {
	return a.Neurons.Areas()
}

// Encode serializes a into artifact files.
func Encode(a *Artifact) (store.Files, error) {
	params, err := param.MarshalCanonical(a.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	files := store.Files{
		FileParameters: params,
		FileHash:       []byte(string(a.Hash) + "\n"),
	}

	writers := map[string]func(io.Writer) error{
		FileNeurons:      func(w io.Writer) error { return anatomy.WriteNeurons(w, a.Neurons) },
		FileSynapses:     func(w io.Writer) error { return anatomy.WriteSynapses(w, a.Synapses) },
		FileRates:        func(w io.Writer) error { return anatomy.WriteRates(w, a.Rates) },
		FileWeights:      func(w io.Writer) error { return writeWeights(w, a.Weights) },
		FileCompensation: func(w io.Writer) error { return writeCompensation(w, a.Compensation) },
		FileExternal:     func(w io.Writer) error { return writeExternal(w, a.External) },
	}
	for name, write := range writers {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = buf.Bytes()
	}
	return files, nil
}

// Decode parses artifact files and checks their consistency.
func Decode(files store.Files) (*Artifact, error) {
	const op = "network.Decode"
	for _, name := range []string{FileNeurons, FileSynapses, FileWeights, FileCompensation, FileExternal, FileRates, FileParameters, FileHash} {
		if _, ok := files[name]; !ok {
			return nil, fault.Integrityf(op, "missing %s", name)
		}
	}

	params, err := decodeParameters(files[FileParameters])
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	want, err := param.Hash(param.DomainNetwork, params)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	got := param.Identifier(strings.TrimSpace(string(files[FileHash])))
	if got != want {
		return nil, fault.Integrityf(op, "hash.txt %s does not match parameters %s", got.Short(), want.Short())
	}
	settings, err := parseSettings(params)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}

	a := &Artifact{Hash: got, Parameters: params, Factors: settings.Factors, Policy: settings.Policy}
	wrap := func(err error, name string) error { return fault.Wrap(fault.Integrity, op, err, "%s", name) }
	if a.Neurons, err = anatomy.ReadNeurons(bytes.NewReader(files[FileNeurons])); err != nil {
		return nil, wrap(err, FileNeurons)
	}
	if a.Synapses, err = anatomy.ReadSynapses(bytes.NewReader(files[FileSynapses])); err != nil {
		return nil, wrap(err, FileSynapses)
	}
	if a.Rates, err = anatomy.ReadRates(bytes.NewReader(files[FileRates])); err != nil {
		return nil, wrap(err, FileRates)
	}
	if a.Weights, err = readWeights(bytes.NewReader(files[FileWeights])); err != nil {
		return nil, wrap(err, FileWeights)
	}
	if a.Compensation, err = readCompensation(bytes.NewReader(files[FileCompensation])); err != nil {
		return nil, wrap(err, FileCompensation)
	}
	if a.External, err = readExternal(bytes.NewReader(files[FileExternal])); err != nil {
		return nil, wrap(err, FileExternal)
	}
	if err := a.check(); err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "inconsistent artifact")
	}
	return a, nil
}

func decodeParameters(data []byte) (param.Object, error) {
	v, err := param.UnmarshalJSONValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(param.Object)
	if !ok {
		return nil, fmt.Errorf("expected mapping, got %s", param.TypeName(v))
	}
	return obj, nil
}

// check verifies that every table refers only to known populations and that
// compensation, external drive and rates cover every population.
func (a *Artifact) check() error {
	for p := range a.Synapses {
		if err := a.known(p); err != nil {
			return fmt.Errorf("synapses: %w", err)
		}
		if _, ok := a.Weights[p]; !ok {
			return fmt.Errorf("no weight for %s", p)
		}
	}
	for p := range a.Weights {
		if err := a.known(p); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
		if _, ok := a.Synapses[p]; !ok {
			return fmt.Errorf("weight without synapses for %s", p)
		}
	}
	for k := range a.Neurons {
		if _, ok := a.Compensation[k]; !ok {
			return fmt.Errorf("no compensation for %s", k)
		}
		if _, ok := a.External[k]; !ok {
			return fmt.Errorf("no external indegree for %s", k)
		}
		if _, ok := a.Rates[k]; !ok {
			return fmt.Errorf("no rate for %s", k)
		}
	}
	for _, m := range []int{len(a.Compensation), len(a.External)} {
		if m != len(a.Neurons) {
			return fmt.Errorf("tables cover %d populations, neurons %d", m, len(a.Neurons))
		}
	}
	return nil
}

func (a *Artifact) known(p anatomy.Projection) error {
	if _, ok := a.Neurons[p.Target]; !ok {
		return fmt.Errorf("unknown target %s", p.Target)
	}
	if _, ok := a.Neurons[p.Source]; !ok {
		return fmt.Errorf("unknown source %s", p.Source)
	}
	return nil
}

func writeWeights(w io.Writer, t scaling.WeightTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(weightHeader); err != nil {
		return err
	}
	for _, p := range anatomy.SortedProjections(t) {
		if err := cw.Write(append(anatomy.ProjectionFields(p), anatomy.FormatFloat(t[p]))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readWeights(r io.Reader) (scaling.WeightTable, error) {
	rows, err := anatomy.ReadTable(r, weightHeader)
	if err != nil {
		return nil, err
	}
	t := make(scaling.WeightTable, len(rows))
	for i, row := range rows {
		p, err := anatomy.ParseProjection(row[:6])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		w, err := anatomy.ParseFloat(row[6])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		t[p] = w
	}
	return t, nil
}

func writeCompensation(w io.Writer, t scaling.CompensationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(compensationHeader); err != nil {
		return err
	}
	for _, k := range anatomy.SortedKeys(t) {
		c := t[k]
		row := append(anatomy.KeyFields(k), anatomy.FormatFloat(c.WeightFactor), anatomy.FormatFloat(c.DC))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCompensation(r io.Reader) (scaling.CompensationRecord, error) {
	rows, err := anatomy.ReadTable(r, compensationHeader)
	if err != nil {
		return nil, err
	}
	t := make(scaling.CompensationRecord, len(rows))
	for i, row := range rows {
		k, err := anatomy.NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		f, err := anatomy.ParseFloat(row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		dc, err := anatomy.ParseFloat(row[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		t[k] = scaling.Compensation{WeightFactor: f, DC: dc}
	}
	return t, nil
}

func writeExternal(w io.Writer, t scaling.ExternalTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(externalHeader); err != nil {
		return err
	}
	for _, k := range anatomy.SortedKeys(t) {
		if err := cw.Write(append(anatomy.KeyFields(k), strconv.FormatInt(t[k], 10))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readExternal(r io.Reader) (scaling.ExternalTable, error) {
	rows, err := anatomy.ReadTable(r, externalHeader)
	if err != nil {
		return nil, err
	}
	t := make(scaling.ExternalTable, len(rows))
	for i, row := range rows {
		k, err := anatomy.NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		n, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("row %d: invalid indegree %q", i+2, row[3])
		}
		t[k] = n
	}
	return t, nil
}
