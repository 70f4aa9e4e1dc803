package raster

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/singleflight"

	"github.com/maauso/clipforge-api/internal/httpclient"
)

// Font weights.
const (
	WeightThin    = 100
	WeightLight   = 300
	WeightRegular = 400
	WeightMedium  = 500
	WeightBold    = 700
)

// minFontFileSize is the size under which a downloaded font is considered corrupt.
const minFontFileSize = 5000

// FontSpec names a font face. Family is an identifier such as "Inter-Medium"
// or "Articulat CF". A zero Weight keeps the family's own weight.
type FontSpec struct {
	Family string
	Weight int
	Italic bool
}

// FontResolver maps a FontSpec to a local font file. Implementations never
// fail: unknown or unavailable families resolve to a fallback face.
type FontResolver interface {
	Resolve(ctx context.Context, spec FontSpec) string
}

type googleFamily struct {
	name   string
	weight int
	italic bool
}

var familyTable = map[string]googleFamily{
	"Inter":                  {"Inter", WeightRegular, false},
	"Inter-Regular":          {"Inter", WeightRegular, false},
	"Inter-Medium":           {"Inter", WeightMedium, false},
	"Inter-Bold":             {"Inter", WeightBold, false},
	"Roboto-Regular":         {"Roboto", WeightRegular, false},
	"Roboto-Medium":          {"Roboto", WeightMedium, false},
	"Roboto-Bold":            {"Roboto", WeightBold, false},
	"LibreFranklin-Regular":  {"Libre Franklin", WeightRegular, false},
	"NotoSans-Regular":       {"Noto Sans", WeightRegular, false},
	"Manrope-Bold":           {"Manrope", WeightBold, false},
	"Manrope-Medium":         {"Manrope", WeightMedium, false},
	"Poppins-Regular":        {"Poppins", WeightRegular, false},
	"Onest-Medium":           {"Inter", WeightMedium, false},
	"TrebuchetMS-Italic":     {"Roboto", WeightMedium, true},
	"Spectral-Bold":          {"Spectral", WeightBold, false},
	"ArticulatCF-Bold":       {"Inter", WeightBold, false},
	"Articulat CF":           {"Inter", WeightBold, false},
	"NeueHaasGrotesk-Medium": {"Inter", WeightMedium, false},
	"FranklinGothic-Book":    {"Libre Franklin", WeightRegular, false},
	"Ebrima":                 {"Noto Sans", WeightRegular, false},
	"Ebrima-Regular":         {"Noto Sans", WeightRegular, false},
	"Arial":                  {"Roboto", WeightRegular, false},
}

// defaultFamily is used for identifiers missing from familyTable.
const defaultFamily = "Roboto-Medium"

// lookupFamily returns the Google Fonts family for spec, applying the
// weight and italic overrides.
func lookupFamily(spec FontSpec) googleFamily {
	gf, ok := familyTable[spec.Family]
	if !ok {
		gf = familyTable[defaultFamily]
	}
	if spec.Weight > 0 {
		gf.weight = spec.Weight
	}
	if spec.Italic {
		gf.italic = true
	}
	return gf
}

var fontURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+\.(?:ttf|otf))['"]?\s*\)`)

// GoogleFontsResolver downloads fonts from the Google Fonts CSS2 API and
// caches them on disk. Files named after the family identifier that are
// already present in the cache directory (for example licensed fonts
// installed by hand) take precedence.
type GoogleFontsResolver struct {
	dir      string
	cssBase  string
	client   *httpclient.Client
	fallback *FallbackFonts
	logger   *slog.Logger
	group    singleflight.Group
}

// ResolverOption configures a GoogleFontsResolver.
type ResolverOption func(*GoogleFontsResolver)

// WithCSSBaseURL overrides the Google Fonts CSS endpoint.
func WithCSSBaseURL(u string) ResolverOption {
	return func(r *GoogleFontsResolver) {
		r.cssBase = u
	}
}

// WithHTTPClient sets the client used for CSS and font downloads.
func WithHTTPClient(c *httpclient.Client) ResolverOption {
	return func(r *GoogleFontsResolver) {
		r.client = c
	}
}

// NewGoogleFontsResolver creates a resolver caching into dir.
func NewGoogleFontsResolver(dir string, logger *slog.Logger, opts ...ResolverOption) (*GoogleFontsResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create font cache dir: %w", err)
	}
	r := &GoogleFontsResolver{
		dir:      dir,
		cssBase:  "https://fonts.googleapis.com/css2",
		client:   httpclient.New(),
		fallback: NewFallbackFonts(dir),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the path of a font file for spec.
func (r *GoogleFontsResolver) Resolve(ctx context.Context, spec FontSpec) string {
	if p := r.installed(spec.Family); p != "" {
		return p
	}

	gf := lookupFamily(spec)
	target := filepath.Join(r.dir, cacheName(gf))
	if info, err := os.Stat(target); err == nil && info.Size() > minFontFileSize {
		return target
	}

	_, err, _ := r.group.Do(target, func() (any, error) {
		return nil, r.download(ctx, gf, target)
	})
	if err != nil {
		r.logger.Warn("font unavailable, using fallback",
			slog.String("family", spec.Family),
			slog.String("error", err.Error()),
		)
		return r.fallback.Path(spec)
	}
	return target
}

func (r *GoogleFontsResolver) installed(family string) string {
	if family == "" {
		return ""
	}
	for _, ext := range []string{".ttf", ".otf"} {
		p := filepath.Join(r.dir, family+ext)
		if info, err := os.Stat(p); err == nil && info.Size() > minFontFileSize {
			return p
		}
	}
	return ""
}

func (r *GoogleFontsResolver) download(ctx context.Context, gf googleFamily, target string) error {
	css, err := r.client.Get(ctx, r.cssURL(gf))
	if err != nil {
		return fmt.Errorf("fetch font css: %w", err)
	}
	m := fontURLPattern.FindSubmatch(css)
	if m == nil {
		return fmt.Errorf("no truetype url in css for %s", gf.name)
	}

	data, err := r.client.Get(ctx, string(m[1]))
	if err != nil {
		return fmt.Errorf("fetch font file: %w", err)
	}
	if len(data) <= minFontFileSize {
		return fmt.Errorf("font file for %s is too small (%d bytes)", gf.name, len(data))
	}

	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write font file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install font file: %w", err)
	}
	r.logger.Info("font cached",
		slog.String("family", gf.name),
		slog.Int("weight", gf.weight),
		slog.String("path", target),
	)
	return nil
}

func (r *GoogleFontsResolver) cssURL(gf googleFamily) string {
	ital := 0
	if gf.italic {
		ital = 1
	}
	q := url.Values{}
	q.Set("family", fmt.Sprintf("%s:ital,wght@%d,%d", gf.name, ital, gf.weight))
	q.Set("display", "swap")
	return r.cssBase + "?" + q.Encode()
}

func cacheName(gf googleFamily) string {
	name := strings.ReplaceAll(gf.name, " ", "")
	if gf.italic {
		return fmt.Sprintf("%s-%d-italic.ttf", name, gf.weight)
	}
	return fmt.Sprintf("%s-%d.ttf", name, gf.weight)
}

// FallbackFonts serves the embedded Go font family as the generic system
// font. Files are materialized on first use so every resolver result is a
// path.
type FallbackFonts struct {
	dir string
	mu  sync.Mutex
}

// NewFallbackFonts creates fallback fonts materialized under dir.
func NewFallbackFonts(dir string) *FallbackFonts {
	return &FallbackFonts{dir: dir}
}

// Resolve implements FontResolver.
func (f *FallbackFonts) Resolve(_ context.Context, spec FontSpec) string {
	return f.Path(spec)
}

// Path returns the fallback file for spec, or "" when it cannot be
// written; the rasterizer then uses the embedded bytes directly.
func (f *FallbackFonts) Path(spec FontSpec) string {
	name, data := fallbackTTF(spec)
	p := filepath.Join(f.dir, name)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(p); err == nil {
		return p
	}
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return ""
	}
	if err := os.WriteFile(p, data, 0600); err != nil {
		return ""
	}
	return p
}

func fallbackTTF(spec FontSpec) (string, []byte) {
	gf := lookupFamily(spec)
	weight, italic := gf.weight, gf.italic
	switch {
	case weight >= 600 && italic:
		return "go-bolditalic.ttf", gobolditalic.TTF
	case weight >= 600:
		return "go-bold.ttf", gobold.TTF
	case weight == WeightMedium && italic:
		return "go-mediumitalic.ttf", gomediumitalic.TTF
	case weight == WeightMedium:
		return "go-medium.ttf", gomedium.TTF
	case italic:
		return "go-italic.ttf", goitalic.TTF
	default:
		return "go-regular.ttf", goregular.TTF
	}
}
