package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/clipforge-api/internal/fetch"
	"github.com/maauso/clipforge-api/internal/storage"
)

// AudioInput selects the audio of a source range.
type AudioInput struct {
	SourceURL string  `json:"sourceUrl"`
	Start     float64 `json:"startTime"`
	End       float64 `json:"endTime"`
}

// ExtractAudio fetches the source range and publishes its audio as MP3.
func (s *ComposeService) ExtractAudio(ctx context.Context, in AudioInput) (storage.Published, error) {
	if err := s.validate(ComposeInput{SourceURL: in.SourceURL, Start: in.Start, End: in.End}); err != nil {
		return storage.Published{}, err
	}

	workdir, err := s.deps.Storage.NewWorkdir(ctx)
	if err != nil {
		return storage.Published{}, err
	}
	defer s.releaseWorkdir(workdir)

	fetched, err := s.deps.Fetcher.Fetch(ctx, fetch.Request{
		URL:        in.SourceURL,
		Start:      in.Start,
		End:        in.End,
		OutputPath: filepath.Join(workdir, "source.mp4"),
	})
	if err != nil {
		return storage.Published{}, &StageError{Stage: StageFetch, Diagnostic: err.Error(), Err: fmt.Errorf("%w: %w", ErrFetchFailed, err)}
	}

	out := s.deps.Storage.OutputPath(".mp3")
	start := max(0, in.Start-fetched.StartOffset)
	if err := s.deps.Media.ExtractAudio(ctx, fetched.Path, out, start, in.End-in.Start); err != nil {
		_ = os.Remove(out)
		return storage.Published{}, stageErr(StageAudio, err)
	}

	pub, err := s.deps.Storage.Publish(ctx, out)
	if err != nil {
		_ = os.Remove(out)
		return storage.Published{}, stageErr(StagePublish, err)
	}
	s.logger.Info("audio extracted",
		slog.String("url", pub.URL),
		slog.Float64("duration", in.End-in.Start),
	)
	return pub, nil
}
