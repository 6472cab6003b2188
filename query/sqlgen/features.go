package sqlgen

import (
	"fmt"
	"strings"
)

// Features is a set of optional provider capabilities.
type Features uint32

const (
	FeatureScalarSubqueries Features = 1 << iota
	FeatureTemporaryTables
	FeaturePagingInSetOperations
	FeatureIntersectExcept
	FeatureRowNumber
	// FeatureNativeSkip is OFFSET support without a row-number rewrite.
	FeatureNativeSkip
	FeatureDateTimeOffset
	FeatureFullText
	FeatureCustomProximity
	FeatureSingleKeyRankTable
)

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureScalarSubqueries, "ScalarSubqueries"},
	{FeatureTemporaryTables, "TemporaryTables"},
	{FeaturePagingInSetOperations, "PagingInSetOperations"},
	{FeatureIntersectExcept, "IntersectExcept"},
	{FeatureRowNumber, "RowNumber"},
	{FeatureNativeSkip, "NativeSkip"},
	{FeatureDateTimeOffset, "DateTimeOffset"},
	{FeatureFullText, "FullText"},
	{FeatureCustomProximity, "CustomProximity"},
	{FeatureSingleKeyRankTable, "SingleKeyRankTable"},
}

// Has reports whether every feature of x is in f.
func (f Features) Has(x Features) bool { return f&x == x }

// Names lists the features of f in declaration order.
func (f Features) Names() []string {
	var out []string
	for _, n := range featureNames {
		if f.Has(n.f) {
			out = append(out, n.name)
		}
	}
	return out
}

func (f Features) String() string {
	if f == 0 {
		return "None"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFeatures parses a comma separated list of feature names.
func ParseFeatures(list string) (Features, error) {
	var out Features
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for _, n := range featureNames {
			if strings.EqualFold(n.name, part) {
				out |= n.f
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("sqlgen: unknown feature %q", part)
		}
	}
	return out, nil
}
