package cli

import (
	"io"
	"os"

	"github.com/UnknownOlympus/pinpoint/internal/service"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// barProgress draws one progress bar per dataset.
type barProgress struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// newProgress returns a progress bar on stderr when it is a terminal, and nil
// otherwise so that the runner stays silent.
func newProgress(stderr *os.File) service.Progress {
	if !isatty.IsTerminal(stderr.Fd()) && !isatty.IsCygwinTerminal(stderr.Fd()) {
		return nil
	}
	return &barProgress{w: stderr}
}

func (p *barProgress) Start(total int, description string) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barProgress) Add(n int) {
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
