package anatomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
)

// CSV headers of the anatomical tables.
var (
	NeuronHeader  = []string{"area", "layer", "population", "count"}
	SynapseHeader = []string{"target_area", "target_layer", "target_population", "source_area", "source_layer", "source_population", "count"}
	RateHeader    = []string{"area", "layer", "population", "rate"}
)

// ReadNeurons parses a neuron table.
func ReadNeurons(r io.Reader) (NeuronTable, error) {
	rows, err := ReadTable(r, NeuronHeader)
	if err != nil {
		return nil, fmt.Errorf("read neurons: %w", err)
	}
	t := make(NeuronTable, len(rows))
	for i, row := range rows {
		key, err := NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("read neurons: row %d: %w", i+2, err)
		}
		n, err := parseCount(row[3])
		if err != nil {
			return nil, fmt.Errorf("read neurons: row %d: %w", i+2, err)
		}
		if _, dup := t[key]; dup {
			return nil, fmt.Errorf("read neurons: row %d: duplicate population %s", i+2, key)
		}
		t[key] = n
	}
	return t, nil
}

// WriteNeurons writes t in canonical key order.
func WriteNeurons(w io.Writer, t NeuronTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(NeuronHeader); err != nil {
		return err
	}
	for _, k := range t.Keys() {
		if err := cw.Write(append(KeyFields(k), strconv.FormatInt(t[k], 10))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSynapses parses a synapse table.
func ReadSynapses(r io.Reader) (SynapseTable, error) {
	rows, err := ReadTable(r, SynapseHeader)
	if err != nil {
		return nil, fmt.Errorf("read synapses: %w", err)
	}
	t := make(SynapseTable, len(rows))
	for i, row := range rows {
		p, err := ParseProjection(row[:6])
		if err != nil {
			return nil, fmt.Errorf("read synapses: row %d: %w", i+2, err)
		}
		n, err := parseCount(row[6])
		if err != nil {
			return nil, fmt.Errorf("read synapses: row %d: %w", i+2, err)
		}
		if _, dup := t[p]; dup {
			return nil, fmt.Errorf("read synapses: row %d: duplicate projection %s", i+2, p)
		}
		t[p] = n
	}
	return t, nil
}

// WriteSynapses writes t in canonical projection order.
func WriteSynapses(w io.Writer, t SynapseTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SynapseHeader); err != nil {
		return err
	}
	for _, p := range t.Projections() {
		row := append(ProjectionFields(p), strconv.FormatInt(t[p], 10))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRates parses a rate table.
func ReadRates(r io.Reader) (RateTable, error) {
	rows, err := ReadTable(r, RateHeader)
	if err != nil {
		return nil, fmt.Errorf("read rates: %w", err)
	}
	t := make(RateTable, len(rows))
	for i, row := range rows {
		key, err := NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("read rates: row %d: %w", i+2, err)
		}
		rate, err := ParseFloat(row[3])
		if err != nil {
			return nil, fmt.Errorf("read rates: row %d: %w", i+2, err)
		}
		if rate < 0 {
			return nil, fmt.Errorf("read rates: row %d: negative rate %v", i+2, rate)
		}
		if _, dup := t[key]; dup {
			return nil, fmt.Errorf("read rates: row %d: duplicate population %s", i+2, key)
		}
		t[key] = rate
	}
	return t, nil
}

// WriteRates writes t in canonical key order.
func WriteRates(w io.Writer, t RateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RateHeader); err != nil {
		return err
	}
	for _, k := range t.Keys() {
		if err := cw.Write(append(KeyFields(k), FormatFloat(t[k]))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadFullScale reads the three anatomical tables from files.
func LoadFullScale(neuronsPath, synapsesPath, ratesPath string) (*FullScale, error) {
	neurons, err := readFile(neuronsPath, ReadNeurons)
	if err != nil {
		return nil, err
	}
	synapses, err := readFile(synapsesPath, ReadSynapses)
	if err != nil {
		return nil, err
	}
	rates, err := readFile(ratesPath, ReadRates)
	if err != nil {
		return nil, err
	}
	return &FullScale{Neurons: neurons, Synapses: synapses, Rates: rates}, nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	t, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable reads a CSV stream, checks its header and returns the data rows.
func ReadTable(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	got, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header %v", header)
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(got, header) {
		return nil, fmt.Errorf("unexpected header %v, want %v", got, header)
	}
	return cr.ReadAll()
}

func parseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

// ParseProjection parses the six key columns of a projection row.
func ParseProjection(fields []string) (Projection, error) {
	if len(fields) != 6 {
		return Projection{}, fmt.Errorf("projection needs 6 fields, got %d", len(fields))
	}
	target, err := NewKey(fields[0], fields[1], fields[2])
	if err != nil {
		return Projection{}, fmt.Errorf("target: %w", err)
	}
	source, err := NewKey(fields[3], fields[4], fields[5])
	if err != nil {
		return Projection{}, fmt.Errorf("source: %w", err)
	}
	return Projection{Target: target, Source: source}, nil
}

// KeyFields returns the three CSV columns of k.
func KeyFields(k PopulationKey) []string {
	return []string{k.Area, string(k.Layer), k.Population}
}

// ProjectionFields returns the six CSV key columns of p.
func ProjectionFields(p Projection) []string {
	return append(KeyFields(p.Target), KeyFields(p.Source)...)
}

// FormatFloat writes f with the shortest representation that parses back
// to the same float64.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseFloat parses a finite float.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}
