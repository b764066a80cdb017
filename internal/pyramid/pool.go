package pyramid

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ForEach runs fn over items on a bounded pool of workers. The first error
// stops dispatch and is returned once in-flight items finish. Cancelling
// ctx stops dispatch the same way.
func ForEach[T any](ctx context.Context, workers int, items []T, bar *progressbar.ProgressBar, fn func(T) error) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	workers = max(1, min(workers, len(items)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	itemCh := make(chan T, workers*2)

	go func() {
		defer close(itemCh)
		for _, it := range items {
			select {
			case itemCh <- it:
			case <-runCtx.Done():
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range itemCh {
				if runCtx.Err() != nil {
					continue
				}
				if err := fn(it); err != nil {
					select {
					case errCh <- err:
					default:
					}
					cancel()
					continue
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return ctx.Err()
}

// NewBar returns a progress bar on stderr, or nil when progress is off.
func NewBar(enabled bool, desc string, total int, unit string) *progressbar.ProgressBar {
	if !enabled || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)
}

// FinishBar completes bar; a nil bar is ignored.
func FinishBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
