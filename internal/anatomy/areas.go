package anatomy

import (
	"cmp"
	"fmt"
	"slices"
)

// DesikanKilliany lists the 34 cortical parcels of one hemisphere of the
// Desikan-Killiany atlas.
var DesikanKilliany = []string{
	"bankssts", "caudalanteriorcingulate", "caudalmiddlefrontal", "cuneus",
	"entorhinal", "frontalpole", "fusiform", "inferiorparietal",
	"inferiortemporal", "insula", "isthmuscingulate", "lateraloccipital",
	"lateralorbitofrontal", "lingual", "medialorbitofrontal", "middletemporal",
	"paracentral", "parahippocampal", "parsopercularis", "parsorbitalis",
	"parstriangularis", "pericalcarine", "postcentral", "posteriorcingulate",
	"precentral", "precuneus", "rostralanteriorcingulate", "rostralmiddlefrontal",
	"superiorfrontal", "superiorparietal", "superiortemporal", "supramarginal",
	"temporalpole", "transversetemporal",
}

// Resting-state networks (Kabbara et al. 2017) used to order areas in
// functional connectivity matrices.
const (
	NetworkDMN   = "DMN" // default mode
	NetworkDAN   = "DAN" // dorsal attention
	NetworkSAN   = "SAN" // salience
	NetworkAUD   = "AUD" // auditory
	NetworkVIS   = "VIS" // visual
	NetworkOther = "other"
)

// NetworkOrder is the display order of the resting-state networks.
var NetworkOrder = []string{NetworkDMN, NetworkDAN, NetworkSAN, NetworkAUD, NetworkVIS, NetworkOther}

// LeftHemisphereNetworks assigns each left-hemisphere area to a resting-state
// network.
var LeftHemisphereNetworks = map[string]string{
	"isthmuscingulate":         NetworkDMN,
	"medialorbitofrontal":      NetworkDMN,
	"posteriorcingulate":       NetworkDMN,
	"precuneus":                NetworkDMN,
	"rostralanteriorcingulate": NetworkDMN,
	"lateralorbitofrontal":     NetworkDMN,
	"parahippocampal":          NetworkDMN,
	"caudalanteriorcingulate":  NetworkDAN,
	"inferiortemporal":         NetworkDAN,
	"middletemporal":           NetworkDAN,
	"parsopercularis":          NetworkDAN,
	"parsorbitalis":            NetworkDAN,
	"parstriangularis":         NetworkDAN,
	"insula":                   NetworkSAN,
	"rostralmiddlefrontal":     NetworkSAN,
	"supramarginal":            NetworkSAN,
	"caudalmiddlefrontal":      NetworkSAN,
	"superiortemporal":         NetworkAUD,
	"cuneus":                   NetworkVIS,
	"lateraloccipital":         NetworkVIS,
	"fusiform":                 NetworkVIS,
	"lingual":                  NetworkVIS,
	"bankssts":                 NetworkOther,
	"entorhinal":               NetworkOther,
	"frontalpole":              NetworkOther,
	"inferiorparietal":         NetworkOther,
	"superiorfrontal":          NetworkOther,
	"paracentral":              NetworkOther,
	"pericalcarine":            NetworkOther,
	"postcentral":              NetworkOther,
	"precentral":               NetworkOther,
	"superiorparietal":         NetworkOther,
	"temporalpole":             NetworkOther,
	"transversetemporal":       NetworkOther,
}

// RightHemisphereNetworks differs from the left hemisphere only in the
// caudal anterior cingulate, which belongs to the default mode network.
var RightHemisphereNetworks = func() map[string]string {
	m := make(map[string]string, len(LeftHemisphereNetworks))
	for k, v := range LeftHemisphereNetworks {
		m[k] = v
	}
	m["caudalanteriorcingulate"] = NetworkDMN
	return m
}()

// Hemispheres.
const (
	HemisphereLeft  = "left"
	HemisphereRight = "right"
)

// HemisphereNetworks returns the network assignment of hemisphere. The
// empty name selects the left hemisphere.
func HemisphereNetworks(hemisphere string) (map[string]string, error) {
	switch hemisphere {
	case "", HemisphereLeft:
		return LeftHemisphereNetworks, nil
	case HemisphereRight:
		return RightHemisphereNetworks, nil
	default:
		return nil, fmt.Errorf("unknown hemisphere %q (want %s or %s)", hemisphere, HemisphereLeft, HemisphereRight)
	}
}

// IsDesikanKilliany reports whether area is a parcel of the atlas.
func IsDesikanKilliany(area string) bool {
	return slices.Contains(DesikanKilliany, area)
}

// NetworkOf returns the resting-state network of area in the given
// assignment, or NetworkOther for unknown areas.
func NetworkOf(assignment map[string]string, area string) string {
	if n, ok := assignment[area]; ok {
		return n
	}
	return NetworkOther
}

// OrderByNetwork sorts areas by resting-state network (NetworkOrder), then
// alphabetically within a network. The input slice is not modified.
func OrderByNetwork(assignment map[string]string, areas []string) []string {
	rank := make(map[string]int, len(NetworkOrder))
	for i, n := range NetworkOrder {
		rank[n] = i
	}

	out := slices.Clone(areas)
	slices.SortStableFunc(out, func(a, b string) int {
		ra, rb := rank[NetworkOf(assignment, a)], rank[NetworkOf(assignment, b)]
		if ra != rb {
			return cmp.Compare(ra, rb)
		}
		return cmp.Compare(a, b)
	})
	return out
}
