package mock

import (
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Documented value ranges of generated results (inclusive)
const (
	OverallMin = 70
	OverallMax = 90
	SkinAgeMin = 22
	SkinAgeMax = 38
	ConcernMin = 60
	ConcernMax = 95
)

// ProviderName tags results produced by the generator
const ProviderName = "mock"

var advice = map[string]string{
	types.ConcernHydration:    "加強保濕，選擇含玻尿酸或神經醯胺的精華",
	types.ConcernOil:          "使用溫和控油潔面，避免過度清潔",
	types.ConcernPores:        "定期溫和去角質，搭配收斂化妝水",
	types.ConcernWrinkles:     "夜間使用含 A 醇或胜肽的抗老產品",
	types.ConcernPigmentation: "每日確實防曬，搭配維他命 C 美白精華",
	types.ConcernAcne:         "保持清潔，選用含水楊酸的調理產品",
	types.ConcernRedness:      "選擇無香料的舒緩修護產品",
	types.ConcernDarkCircles:  "規律作息，使用含咖啡因的眼霜",
	types.ConcernTexture:      "建立穩定的保養程序，改善膚質細緻度",
}

// Generator produces structurally valid analysis results without a provider.
// The same seed and image bytes always yield the same scores.
type Generator struct {
	seed uint64
	now  func() time.Time
}

// New creates a Generator with the given base seed
func New(seed int64) *Generator {
	return &Generator{seed: uint64(seed), now: time.Now}
}

// Generate builds a mock result for the encoded image
func (g *Generator) Generate(image []byte) *types.AnalysisResult {
	h := fnv.New64a()
	h.Write(image)
	r := rand.New(rand.NewPCG(g.seed, h.Sum64()))

	between := func(lo, hi int) int {
		return lo + r.IntN(hi-lo+1)
	}

	concerns := make([]types.Concern, 0, len(types.KnownConcerns))
	for _, name := range types.KnownConcerns {
		score := between(ConcernMin, ConcernMax)
		c := types.Concern{
			Name:   name,
			Score:  score,
			Status: types.StatusForScore(score),
		}
		if c.Status != types.StatusExcellent {
			c.Improvement = advice[name]
		}
		concerns = append(concerns, c)
	}

	return &types.AnalysisResult{
		ID:              uuid.NewString(),
		OverallScore:    between(OverallMin, OverallMax),
		SkinAge:         between(SkinAgeMin, SkinAgeMax),
		Concerns:        concerns,
		Recommendations: recommendations(concerns, 3),
		Provenance: types.Provenance{
			Source:   types.SourceMock,
			Provider: ProviderName,
			Mock:     true,
		},
		CreatedAt: g.now(),
	}
}

// recommendations returns advice for the n lowest scoring concerns
func recommendations(concerns []types.Concern, n int) []string {
	sorted := append([]types.Concern(nil), concerns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, 0, len(sorted))
	for _, c := range sorted {
		if a, ok := advice[c.Name]; ok {
			out = append(out, a)
		}
	}
	return out
}
