// Package template holds the named styling presets applied to a clip.
package template

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/maauso/clipforge-api/internal/raster"
)

// DefaultName is the template used for empty or unknown names.
const DefaultName = "default"

// ErrInvalidTemplate is returned for templates that cannot be rendered.
var ErrInvalidTemplate = errors.New("invalid template")

// Font is a family identifier and weight.
type Font struct {
	Family string `yaml:"family" json:"family" validate:"required"`
	Weight int    `yaml:"weight" json:"weight" validate:"omitempty,min=100,max=900"`
}

// Spec converts f for the rasterizer.
func (f Font) Spec(italic bool) raster.FontSpec {
	return raster.FontSpec{Family: f.Family, Weight: f.Weight, Italic: italic}
}

// Template is a named styling preset.
type Template struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Dual renders the title as a bold/regular pair in two colors.
	Dual         bool   `yaml:"dual" json:"dual"`
	BoldColor    string `yaml:"boldColor" json:"boldColor,omitempty" validate:"omitempty,hexcolor"`
	RegularColor string `yaml:"regularColor" json:"regularColor,omitempty" validate:"omitempty,hexcolor"`
	Title        Font   `yaml:"title" json:"title"`
	Caption      Font   `yaml:"caption" json:"caption"`
	Credit       Font   `yaml:"credit" json:"credit"`
	// Watermark is the handle drawn under the video, without the "@".
	Watermark string `yaml:"watermark" json:"watermark,omitempty" validate:"omitempty,excludes=@"`
}

// WatermarkText returns the rendered watermark, or "" when there is none.
func (t Template) WatermarkText() string {
	if t.Watermark == "" {
		return ""
	}
	return "@" + t.Watermark
}

var (
	plainTitle   = Font{Family: "Inter-Medium", Weight: raster.WeightRegular}
	plainCaption = Font{Family: "Roboto-Medium", Weight: raster.WeightRegular}
	brandTitle   = Font{Family: "Inter", Weight: raster.WeightBold}
	brandCaption = Font{Family: "Inter", Weight: raster.WeightMedium}
	thinCredit   = Font{Family: "Arial", Weight: raster.WeightThin}
)

func brand(name, bold, regular string) Template {
	return Template{
		Name:         name,
		Dual:         true,
		BoldColor:    bold,
		RegularColor: regular,
		Title:        brandTitle,
		Caption:      brandCaption,
		Credit:       thinCredit,
		Watermark:    name,
	}
}

func plain(name, watermark string) Template {
	return Template{Name: name, Title: plainTitle, Caption: plainCaption, Credit: thinCredit, Watermark: watermark}
}

// Builtins returns the presets shipped with the service.
func Builtins() []Template {
	podcasts := brand("bestindianpodcasts", "#FFF200", "#FEFFFF")
	podcasts.Title = Font{Family: "Articulat CF", Weight: raster.WeightBold}

	return []Template{
		plain(DefaultName, ""),
		brand("101xfounders", "#F9A21B", "#FFFFFF"),
		brand("101xbusiness", "#1D6CF2", "#FEFFFF"),
		brand("101xmarketing", "#3AA946", "#FEFFFF"),
		brand("bizzindia", "#0095FA", "#FEFFFF"),
		podcasts,
		plain("indianfoundersco", "indianfoundersco"),
		plain("bip", "bip"),
		plain("lumenlinks", "lumenlinks"),
		plain("goodclipsmatter", "goodclipsmatter"),
		plain("jabwewatched", "jabwewatched"),
	}
}

// Registry resolves template names. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates a registry holding the built-ins and extra.
func NewRegistry(extra ...Template) *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range Builtins() {
		r.templates[t.Name] = t
	}
	for _, t := range extra {
		r.templates[strings.ToLower(t.Name)] = t
	}
	return r
}

// Get returns the named template and whether it exists. Unknown names
// resolve to the default template.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, true
	}
	return r.templates[DefaultName], false
}

// List returns every template sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.templates)
	sort.Strings(names)
	return lo.Map(names, func(n string, _ int) Template { return r.templates[n] })
}

// Put adds or replaces a template.
func (r *Registry) Put(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[strings.ToLower(t.Name)] = t
}

type file struct {
	Templates []Template `yaml:"templates" validate:"dive"`
}

// LoadFile reads templates from a YAML document of the form
// "templates: [...]" and validates them.
func LoadFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid templates file: %w", err)
	}
	for _, t := range f.Templates {
		if t.Dual && (t.BoldColor == "" || t.RegularColor == "") {
			return nil, fmt.Errorf("%w: template %q is dual but lacks colors", ErrInvalidTemplate, t.Name)
		}
	}
	return f.Templates, nil
}
