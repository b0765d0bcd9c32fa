// Package presenter turns analysis results and quality verdicts into
// localized display models.
package presenter

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Supported locales
const (
	LocaleZhTW = "zh-TW"
	LocaleEn   = "en"
)

// Text is one string in several locales
type Text map[string]string

// In returns the text for locale, falling back to zh-TW and then en
func (t Text) In(locale string) string {
	if s, ok := t[locale]; ok && s != "" {
		return s
	}
	if s := t[LocaleZhTW]; s != "" {
		return s
	}
	return t[LocaleEn]
}

// ConcernEntry holds the display name and advice of one concern
type ConcernEntry struct {
	Name   Text `yaml:"name"`
	Advice Text `yaml:"advice"`
}

// Catalog is the set of display strings
type Catalog struct {
	Tiers    map[string]Text         `yaml:"tiers"`
	Concerns map[string]ConcernEntry `yaml:"concerns"`
	Guidance map[string]Text         `yaml:"guidance"`
	Notes    map[string]Text         `yaml:"notes"`
}

// ParseCatalog decodes a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for _, tier := range []types.ConcernStatus{types.StatusExcellent, types.StatusGood, types.StatusNeedsImprovement} {
		if _, ok := c.Tiers[string(tier)]; !ok {
			return nil, fmt.Errorf("catalog: missing tier %q", tier)
		}
	}
	return &c, nil
}

// Config holds presenter settings
type Config struct {
	Locale string
	// Minimum scores of the excellent and good tiers
	ExcellentScore int
	GoodScore      int
}

// DefaultConfig returns zh-TW with the 80/60 tier cutoffs
func DefaultConfig() Config {
	return Config{
		Locale:         LocaleZhTW,
		ExcellentScore: 80,
		GoodScore:      60,
	}
}

// Presenter formats results for display
type Presenter struct {
	config  Config
	catalog *Catalog
}

// New creates a presenter with the default config and embedded catalog
func New() *Presenter {
	p, err := NewWithConfig(DefaultConfig(), nil)
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a presenter; a nil catalog selects the embedded one
func NewWithConfig(cfg Config, catalog *Catalog) (*Presenter, error) {
	if cfg.Locale == "" {
		cfg.Locale = LocaleZhTW
	}
	if cfg.ExcellentScore == 0 && cfg.GoodScore == 0 {
		def := DefaultConfig()
		cfg.ExcellentScore, cfg.GoodScore = def.ExcellentScore, def.GoodScore
	}
	if cfg.GoodScore > cfg.ExcellentScore {
		return nil, fmt.Errorf("good score %d above excellent score %d", cfg.GoodScore, cfg.ExcellentScore)
	}
	if catalog == nil {
		c, err := ParseCatalog(defaultCatalog)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	return &Presenter{config: cfg, catalog: catalog}, nil
}

// Tier is a graded score with its label
type Tier struct {
	Status types.ConcernStatus `json:"status"`
	Label  string              `json:"label"`
}

// ConcernView is one concern row
type ConcernView struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Tier        Tier   `json:"tier"`
	Improvement string `json:"improvement,omitempty"`
}

// DisplayModel is everything a result screen shows
type DisplayModel struct {
	ID              string        `json:"id"`
	OverallScore    int           `json:"overall_score"`
	OverallTier     Tier          `json:"overall_tier"`
	SkinAge         int           `json:"skin_age"`
	Concerns        []ConcernView `json:"concerns"`
	Recommendations []string      `json:"recommendations"`
	Provider        string        `json:"provider,omitempty"`
	Mock            bool          `json:"mock"`
	Note            string        `json:"note,omitempty"`
}

// Tier grades a score with the configured cutoffs
func (p *Presenter) Tier(score int) Tier {
	status := types.StatusNeedsImprovement
	switch {
	case score >= p.config.ExcellentScore:
		status = types.StatusExcellent
	case score >= p.config.GoodScore:
		status = types.StatusGood
	}
	return Tier{Status: status, Label: p.catalog.Tiers[string(status)].In(p.config.Locale)}
}

// Present builds the display model of a result without modifying it
func (p *Presenter) Present(r *types.AnalysisResult) DisplayModel {
	locale := p.config.Locale
	m := DisplayModel{
		ID:           r.ID,
		OverallScore: types.ClampScore(r.OverallScore),
		SkinAge:      r.SkinAge,
		Provider:     r.Provenance.Provider,
		Mock:         r.Provenance.Mock,
	}
	m.OverallTier = p.Tier(m.OverallScore)

	var recs []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		recs = append(recs, s)
	}
	for _, s := range r.Recommendations {
		add(s)
	}

	m.Concerns = make([]ConcernView, 0, len(r.Concerns))
	for _, c := range r.Concerns {
		entry, known := p.catalog.Concerns[c.Name]
		view := ConcernView{
			Name:        c.Name,
			DisplayName: c.Name,
			Score:       types.ClampScore(c.Score),
			Improvement: c.Improvement,
		}
		if known {
			view.DisplayName = entry.Name.In(locale)
		}
		view.Tier = p.Tier(view.Score)

		if view.Tier.Status == types.StatusNeedsImprovement {
			if view.Improvement == "" && known {
				view.Improvement = entry.Advice.In(locale)
			}
			add(view.Improvement)
		}
		m.Concerns = append(m.Concerns, view)
	}
	m.Recommendations = recs

	if m.Mock {
		if r.Provenance.FallbackReason != "" {
			m.Note = p.catalog.Notes["fallback"].In(locale)
		} else {
			m.Note = p.catalog.Notes["mock"].In(locale)
		}
	}
	return m
}

// Guidance returns capture hints for the live preview, most urgent first
func (p *Presenter) Guidance(v types.QualityVerdict, s types.QualitySample) []string {
	g := func(key string) string { return p.catalog.Guidance[key].In(p.config.Locale) }

	if v.Ready() {
		return []string{g("ready")}
	}

	var hints []string
	if v.Lighting != types.Good {
		switch {
		case s.OverexposureRatio > s.UnderexposureRatio && s.LightingScore > 0.5:
			hints = append(hints, g("lighting_bright"))
		case s.LightingScore < 0.5:
			hints = append(hints, g("lighting_dark"))
		default:
			hints = append(hints, g("lighting_adjust"))
		}
	}
	switch v.Position {
	case types.Bad:
		hints = append(hints, g("position_bad"))
	case types.Warning:
		hints = append(hints, g("position_closer"))
	}
	return hints
}

// WriteText renders a display model as plain text
func WriteText(w io.Writer, m DisplayModel) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %d (%s)\n", m.OverallScore, m.OverallTier.Label)
	if m.SkinAge > 0 {
		fmt.Fprintf(&b, "Skin age: %d\n", m.SkinAge)
	}
	for _, c := range m.Concerns {
		fmt.Fprintf(&b, "  %-14s %3d  %s\n", c.DisplayName, c.Score, c.Tier.Label)
	}
	if len(m.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for i, r := range m.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
		}
	}
	if m.Note != "" {
		fmt.Fprintf(&b, "* %s\n", m.Note)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
