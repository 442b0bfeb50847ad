package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aoli-al/havoc-mutation-eval/internal/campaign"
)

// SwapCorpus puts the trial-controlled corpus of a campaign in place of the
// full corpus so that analysis replays only the inputs saved before the
// execution limit. The returned function restores the original layout.
func SwapCorpus(dir string) (func() error, error) {
	corpus := filepath.Join(dir, campaign.CorpusDir)
	full := filepath.Join(dir, campaign.CorpusFullDir)
	controlled := filepath.Join(dir, campaign.ControlledDir)

	if err := moveIfExists(corpus, full); err != nil {
		return nil, err
	}
	if err := moveIfExists(controlled, corpus); err != nil {
		// put the full corpus back before giving up
		return nil, errors.Join(err, moveIfExists(full, corpus))
	}

	return func() error {
		if err := moveIfExists(corpus, controlled); err != nil {
			return err
		}
		return moveIfExists(full, corpus)
	}, nil
}

func moveIfExists(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}
