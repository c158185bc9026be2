package metrics

import (
	"sort"

	"github.com/getsentry/vroomscope/internal/calltree"
	"github.com/getsentry/vroomscope/internal/frame"
	"github.com/getsentry/vroomscope/internal/profile"
	"github.com/getsentry/vroomscope/internal/quantile"
)

// Function is the self weight a frame accumulated at the top of the stack
// in one profile.
type Function struct {
	Fingerprint string
	Name        string
	Package     string
	InApp       bool
	SelfWeight  float64
	SampleCount int
}

type aggregatedFunction struct {
	Function

	SelfWeights []float64
}

type FunctionsMetadata struct {
	MaxVal   float64
	WorstID  string
	Examples []string
}

type Aggregator struct {
	MaxUniqueFunctions uint
	MaxNumOfExamples   uint
	Functions          map[string]aggregatedFunction
	FunctionsMetadata  map[string]FunctionsMetadata
}

type FunctionMetrics struct {
	Name        string   `json:"name"`
	Package     string   `json:"package"`
	Fingerprint string   `json:"fingerprint"`
	InApp       bool     `json:"in_app"`
	P75         float64  `json:"p75"`
	P95         float64  `json:"p95"`
	P99         float64  `json:"p99"`
	Avg         float64  `json:"avg"`
	Sum         float64  `json:"sum"`
	Count       uint64   `json:"count"`
	Worst       string   `json:"worst"`
	Examples    []string `json:"examples"`
}

// ExtractFunctions returns one entry per frame found at the top of a sample,
// in the order they were first seen. Idle samples are skipped. Functions are
// fingerprinted by location so they aggregate across profiles.
func ExtractFunctions(p *profile.Profile) []Function {
	var (
		functions []Function
		index     = make(map[frame.Handle]int)
		nodes     = p.Nodes()
	)
	p.ForEachSample(func(n calltree.NodeID, weight float64) {
		if nodes.IsRoot(n) {
			return
		}
		h := nodes.Frame(n)
		i, ok := index[h]
		if !ok {
			f := p.Frame(n)
			i = len(functions)
			index[h] = i
			functions = append(functions, Function{
				Fingerprint: f.ID(),
				Name:        f.Function,
				Package:     f.PackageBaseName(),
				InApp:       f.IsApplication(),
			})
		}
		functions[i].SelfWeight += weight
		functions[i].SampleCount++
	})
	return functions
}

func NewAggregator(MaxUniqueFunctions uint, MaxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: MaxUniqueFunctions,
		MaxNumOfExamples:   MaxNumOfExamples,
		Functions:          make(map[string]aggregatedFunction),
		FunctionsMetadata:  make(map[string]FunctionsMetadata),
	}
}

// AddFunctions records the functions of the profile identified by ID.
func (ma *Aggregator) AddFunctions(functions []Function, ID string) {
	for _, f := range functions {
		if fn, ok := ma.Functions[f.Fingerprint]; ok {
			fn.SampleCount += f.SampleCount
			fn.SelfWeights = append(fn.SelfWeights, f.SelfWeight)
			fn.SelfWeight += f.SelfWeight
			funcMetadata := ma.FunctionsMetadata[f.Fingerprint]
			if f.SelfWeight > funcMetadata.MaxVal {
				funcMetadata.MaxVal = f.SelfWeight
				funcMetadata.WorstID = ID
			}
			if len(funcMetadata.Examples) < int(ma.MaxNumOfExamples) {
				funcMetadata.Examples = append(funcMetadata.Examples, ID)
			}
			ma.FunctionsMetadata[f.Fingerprint] = funcMetadata
			ma.Functions[f.Fingerprint] = fn
		} else {
			ma.Functions[f.Fingerprint] = aggregatedFunction{
				Function:    f,
				SelfWeights: []float64{f.SelfWeight},
			}
			ma.FunctionsMetadata[f.Fingerprint] = FunctionsMetadata{
				MaxVal:   f.SelfWeight,
				WorstID:  ID,
				Examples: []string{ID},
			}
		}
	}
}

// ToMetrics returns the heaviest functions first. Percentiles are computed
// over the per profile self weights.
func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.Functions))

	for _, f := range ma.Functions {
		q := quantile.Quantile{Xs: f.SelfWeights}
		q.Sort()
		metrics = append(metrics, FunctionMetrics{
			Name:        f.Name,
			Package:     f.Package,
			Fingerprint: f.Fingerprint,
			InApp:       f.InApp,
			P75:         q.Percentile(0.75),
			P95:         q.Percentile(0.95),
			P99:         q.Percentile(0.99),
			Avg:         f.SelfWeight / float64(len(f.SelfWeights)),
			Sum:         f.SelfWeight,
			Count:       uint64(f.SampleCount),
			Worst:       ma.FunctionsMetadata[f.Fingerprint].WorstID,
			Examples:    ma.FunctionsMetadata[f.Fingerprint].Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum != metrics[j].Sum {
			return metrics[i].Sum > metrics[j].Sum
		}
		return metrics[i].Fingerprint < metrics[j].Fingerprint
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}
