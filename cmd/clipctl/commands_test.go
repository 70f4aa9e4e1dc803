package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/server"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportSRT(t *testing.T) {
	path := writeFile(t, "talk.srt", "1\n00:00:01,000 --> 00:00:02,000\nHi there\n")

	out, err := execute(t, "import-srt", path)
	require.NoError(t, err)

	var resp server.CaptionsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []captions.Caption{{Start: "00:00:01.000", End: "00:00:02.000", Text: "Hi there"}}, resp.Captions)
}

func TestImportSRT_MissingFile(t *testing.T) {
	_, err := execute(t, "import-srt", filepath.Join(t.TempDir(), "nope.srt"))
	assert.Error(t, err)
}

func TestLayout(t *testing.T) {
	t.Run("tentative", func(t *testing.T) {
		out, err := execute(t, "layout", "--aspect", "16:9")
		require.NoError(t, err)

		var plan layout.Plan
		require.NoError(t, json.Unmarshal([]byte(out), &plan))
		assert.Equal(t, layout.Size{Width: 2560, Height: 1440}, plan.Canvas)
		assert.False(t, plan.Final)
	})

	t.Run("final", func(t *testing.T) {
		out, err := execute(t, "layout", "--title-height", "120")
		require.NoError(t, err)

		var plan layout.Plan
		require.NoError(t, json.Unmarshal([]byte(out), &plan))
		assert.Equal(t, layout.Ratio9x16, plan.Aspect)
		assert.True(t, plan.Final)
		assert.True(t, plan.Canvas.Height > plan.Video.Bottom())
	})

	t.Run("bad aspect", func(t *testing.T) {
		_, err := execute(t, "layout", "--aspect", "2:1")
		assert.Error(t, err)
	})
}

func TestAnalyze(t *testing.T) {
	path := writeFile(t, "req.json", `{
		"youtubeUrl": "https://youtu.be/abc",
		"startTime": 10,
		"endTime": 20,
		"captions": [{"start": "00:00:12", "end": "00:00:30", "text": "runs long"}]
	}`)

	out, err := execute(t, "analyze", "--request", path)
	require.NoError(t, err)

	var report captions.TimingReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Captions, 1)
	assert.True(t, report.Captions[0].Issues.EndsAfterClip)
	assert.NotEmpty(t, report.Recommendations)
}

func TestAnalyze_RequiresRequestFlag(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.ErrorContains(t, err, "request")
}

func TestRender_RejectsRequestWithoutURL(t *testing.T) {
	path := writeFile(t, "req.json", `{"startTime": 1}`)
	_, err := execute(t, "render", "--request", path)
	assert.ErrorContains(t, err, "youtubeUrl")
}

func TestAnalyze_RejectsBackwardsRange(t *testing.T) {
	path := writeFile(t, "req.json", `{"youtubeUrl": "u", "startTime": 20, "endTime": 10}`)
	_, err := execute(t, "analyze", "--request", path)
	assert.ErrorContains(t, err, "invalid time range")
}
