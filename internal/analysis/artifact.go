package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/store"
)

// Artifact file names.
const (
	FileRates        = "rates.csv"
	FileCVISI        = "cv_isi.csv"
	FileCorrelation  = "correlation.csv"
	FileConnectivity = "functional_connectivity.csv"
	FileRaster       = "raster.csv"
	FileParameters   = "parameters.json"
	FileHash         = "hash.txt"
)

var (
	rateHeader        = []string{"area", "layer", "population", "rate"}
	cvHeader          = []string{"area", "layer", "population", "cv_isi"}
	correlationHeader = []string{"area", "layer", "population", "correlation"}
	rasterHeader      = []string{"area", "layer", "population", "neuron_id", "spike_time"}
)

// Artifact is a stored analysis.
type Artifact struct {
	Hash         param.Identifier
	Simulation   param.Identifier
	Params       Params
	Populations  map[anatomy.PopulationKey]PopulationStats
	Connectivity Connectivity
	Raster       []Spike
}

// Tree returns the parameter tree that identifies a.
func (a *Artifact) Tree() param.Object {
	return param.AnalysisTree(a.Simulation, a.Params.Tree())
}

// Keys returns the analysed populations in canonical order.
func (a *Artifact) Keys() []anatomy.PopulationKey {
	return anatomy.SortedKeys(a.Populations)
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

	keys := a.Keys()
	columns := []struct {
		name   string
		header []string
		value  func(PopulationStats) float64
	}{
		{FileRates, rateHeader, func(s PopulationStats) float64 { return s.Rate }},
		{FileCVISI, cvHeader, func(s PopulationStats) float64 { return s.CVISI }},
		{FileCorrelation, correlationHeader, func(s PopulationStats) float64 { return s.Correlation }},
	}
	for _, col := range columns {
		data, err := writeCSV(col.header, func(cw *csv.Writer) error {
			for _, k := range keys {
				if err := cw.Write(append(anatomy.KeyFields(k), formatStat(col.value(a.Populations[k])))); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", col.name, err)
		}
		files[col.name] = data
	}

	fc := a.Connectivity
	data, err := writeCSV(append([]string{"area"}, fc.Areas...), func(cw *csv.Writer) error {
		for i, area := range fc.Areas {
			row := []string{area}
			for j := range fc.Areas {
				row = append(row, formatStat(fc.Matrix.At(i, j)))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", FileConnectivity, err)
	}
	files[FileConnectivity] = data

	data, err = writeCSV(rasterHeader, func(cw *csv.Writer) error {
		for _, s := range a.Raster {
			row := append(anatomy.KeyFields(s.Population),
				strconv.FormatInt(s.NeuronID, 10),
				anatomy.FormatFloat(s.Time))
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", FileRaster, err)
	}
	files[FileRaster] = data
	return files, nil
}

func writeCSV(header []string, rows func(*csv.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := rows(cw); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formatStat writes undefined statistics as "NaN".
func formatStat(f float64) string {
	return anatomy.FormatFloat(f)
}

func parseStat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid statistic %q", s)
	}
	return f, nil
}

// Decode parses artifact files and checks their consistency.
func Decode(files store.Files) (*Artifact, error) {
	const op = "analysis.Decode"
	for _, name := range []string{FileRates, FileCVISI, FileCorrelation, FileConnectivity, FileRaster, FileParameters, FileHash} {
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
	want, err := param.Hash(param.DomainAnalysis, obj)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	got := param.Identifier(strings.TrimSpace(string(files[FileHash])))
	if got != want {
		return nil, fault.Integrityf(op, "hash.txt %s does not match parameters %s", got.Short(), want.Short())
	}
	simHash, err := obj.Str("simulation", "")
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	sub, err := obj.Sub("analysis")
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}
	p, err := ParseParams(sub)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileParameters)
	}

	a := &Artifact{
		Hash:        got,
		Simulation:  param.Identifier(simHash),
		Params:      p,
		Populations: make(map[anatomy.PopulationKey]PopulationStats),
	}
	rates, err := readStats(files[FileRates], rateHeader)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileRates)
	}
	cvs, err := readStats(files[FileCVISI], cvHeader)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileCVISI)
	}
	corrs, err := readStats(files[FileCorrelation], correlationHeader)
	if err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileCorrelation)
	}
	for k, rate := range rates {
		cv, okCV := cvs[k]
		corr, okCorr := corrs[k]
		if !okCV || !okCorr {
			return nil, fault.Integrityf(op, "population %s missing from statistics", k)
		}
		a.Populations[k] = PopulationStats{Rate: rate, CVISI: cv, Correlation: corr}
	}
	if len(cvs) != len(rates) || len(corrs) != len(rates) {
		return nil, fault.Integrityf(op, "statistics cover different populations")
	}

	if a.Connectivity, err = readConnectivity(files[FileConnectivity]); err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileConnectivity)
	}
	if a.Raster, err = readRaster(files[FileRaster], a.Populations); err != nil {
		return nil, fault.Wrap(fault.Integrity, op, err, "%s", FileRaster)
	}
	return a, nil
}

func readStats(data []byte, header []string) (map[anatomy.PopulationKey]float64, error) {
	rows, err := anatomy.ReadTable(bytes.NewReader(data), header)
	if err != nil {
		return nil, err
	}
	out := make(map[anatomy.PopulationKey]float64, len(rows))
	for i, row := range rows {
		k, err := anatomy.NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		v, err := parseStat(row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("row %d: duplicate population %s", i+2, k)
		}
		out[k] = v
	}
	return out, nil
}

func readConnectivity(data []byte) (Connectivity, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return Connectivity{}, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "area" {
		return Connectivity{}, fmt.Errorf("missing header")
	}
	areas := records[0][1:]
	if len(records)-1 != len(areas) {
		return Connectivity{}, fmt.Errorf("%d rows for %d areas", len(records)-1, len(areas))
	}
	if len(areas) == 0 {
		return Connectivity{}, nil
	}
	m := mat.NewSymDense(len(areas), nil)
	for i, row := range records[1:] {
		if row[0] != areas[i] {
			return Connectivity{}, fmt.Errorf("row %d is %q, want %q", i+2, row[0], areas[i])
		}
		for j := range areas {
			v, err := parseStat(row[j+1])
			if err != nil {
				return Connectivity{}, fmt.Errorf("row %d: %w", i+2, err)
			}
			if j >= i {
				m.SetSym(i, j, v)
			} else if prev := m.At(i, j); !sameStat(prev, v) {
				return Connectivity{}, fmt.Errorf("matrix is not symmetric at (%s,%s)", areas[i], areas[j])
			}
		}
	}
	return Connectivity{Areas: slices.Clone(areas), Matrix: m}, nil
}

func sameStat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func readRaster(data []byte, known map[anatomy.PopulationKey]PopulationStats) ([]Spike, error) {
	rows, err := anatomy.ReadTable(bytes.NewReader(data), rasterHeader)
	if err != nil {
		return nil, err
	}
	out := make([]Spike, 0, len(rows))
	for i, row := range rows {
		k, err := anatomy.NewKey(row[0], row[1], row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("row %d: population %s was not analysed", i+2, k)
		}
		id, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("row %d: invalid neuron id %q", i+2, row[3])
		}
		t, err := anatomy.ParseFloat(row[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, Spike{Population: k, NeuronID: id, Time: t})
	}
	return out, nil
}
