package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name      string
		wantName  string
		found     bool
		dual      bool
		watermark string
	}{
		{"101xfounders", "101xfounders", true, true, "@101xfounders"},
		{" 101XBusiness ", "101xbusiness", true, true, "@101xbusiness"},
		{"jabwewatched", "jabwewatched", true, false, "@jabwewatched"},
		{"", DefaultName, false, false, ""},
		{"nope", DefaultName, false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Get(tt.name)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.dual, got.Dual)
			assert.Equal(t, tt.watermark, got.WatermarkText())
		})
	}
}

func TestBuiltins_Colors(t *testing.T) {
	r := NewRegistry()
	want := map[string][2]string{
		"101xfounders":       {"#F9A21B", "#FFFFFF"},
		"101xbusiness":       {"#1D6CF2", "#FEFFFF"},
		"101xmarketing":      {"#3AA946", "#FEFFFF"},
		"bizzindia":          {"#0095FA", "#FEFFFF"},
		"bestindianpodcasts": {"#FFF200", "#FEFFFF"},
	}
	for name, colors := range want {
		tpl, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, colors[0], tpl.BoldColor, name)
		assert.Equal(t, colors[1], tpl.RegularColor, name)
	}

	podcasts, _ := r.Get("bestindianpodcasts")
	assert.Equal(t, "Articulat CF", podcasts.Title.Family)
}

func TestRegistry_ListIsSorted(t *testing.T) {
	list := NewRegistry().List()
	require.Len(t, list, len(Builtins()))
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	doc := `templates:
  - name: Studio
    dual: true
    boldColor: "#FF0000"
    regularColor: "#FFFFFF"
    title: {family: Manrope-Bold, weight: 700}
    caption: {family: Inter-Medium}
    credit: {family: Arial, weight: 100}
    watermark: studio
  - name: 101xfounders
    title: {family: Poppins-Regular}
    caption: {family: Poppins-Regular}
    credit: {family: Poppins-Regular}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	r := NewRegistry(loaded...)
	studio, ok := r.Get("studio")
	require.True(t, ok)
	assert.Equal(t, "Manrope-Bold", studio.Title.Family)
	assert.Equal(t, "@studio", studio.WatermarkText())

	overridden, _ := r.Get("101xfounders")
	assert.False(t, overridden.Dual)
	assert.Equal(t, "Poppins-Regular", overridden.Title.Family)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"dual without colors": "templates:\n  - name: x\n    dual: true\n    title: {family: a}\n    caption: {family: a}\n    credit: {family: a}\n",
		"bad color":           "templates:\n  - name: x\n    boldColor: orange\n    title: {family: a}\n    caption: {family: a}\n    credit: {family: a}\n",
		"missing font":        "templates:\n  - name: x\n    title: {family: a}\n    caption: {family: a}\n",
		"bad weight":          "templates:\n  - name: x\n    title: {family: a, weight: 50}\n    caption: {family: a}\n    credit: {family: a}\n",
		"at in watermark":     "templates:\n  - name: x\n    watermark: \"@x\"\n    title: {family: a}\n    caption: {family: a}\n    credit: {family: a}\n",
		"not yaml":            "templates: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "t.yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFont_Spec(t *testing.T) {
	spec := Font{Family: "Inter", Weight: 700}.Spec(true)
	assert.Equal(t, "Inter", spec.Family)
	assert.Equal(t, 700, spec.Weight)
	assert.True(t, spec.Italic)
}
