package downloader

import "sync"

// PostProcessResult tells DownloadAll whether to keep running or stop
// early once a context finalizes.
type PostProcessResult int

const (
	// ResultContinue keeps the batch running.
	ResultContinue PostProcessResult = iota
	// ResultFinish terminates the batch early; transfers still in flight
	// are handed to BatchConfig.Canceller, if one is set.
	ResultFinish
)

// BatchConfig configures DownloadAll.
type BatchConfig struct {
	// MaxDownloads caps how many transfers are in flight at once.
	MaxDownloads int
	// Total is how many URLs URLGenerator will be asked to produce before
	// the batch considers itself exhausted.
	Total int
	// URLGenerator returns the i'th URL (and its byte bound) to fetch.
	URLGenerator func(i int) (url string, maxLen int64)
	// PostProcess is invoked once per finalized context; returning
	// ResultFinish stops the batch early.
	PostProcess func(i int, ctx *Context) PostProcessResult
	// Canceller, if set, is invoked against every still-in-flight context
	// when the batch finishes early.
	Canceller func(ctx *Context)
}

// DownloadAll runs a batch of downloads, keeping up to MaxDownloads in
// flight, invoking the URL generator to produce work and the
// post-processor on each completion. Used for parallel block fetches.
func (d *Downloader) DownloadAll(cfg BatchConfig) error {
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = 1
	}

	sem := make(chan struct{}, cfg.MaxDownloads)

	var mu sync.Mutex
	inFlight := make(map[*Context]struct{})

	var wg sync.WaitGroup
	var finishOnce sync.Once
	finished := false
	finish := make(chan struct{})

	triggerFinish := func() {
		finishOnce.Do(func() {
			mu.Lock()
			finished = true
			remaining := make([]*Context, 0, len(inFlight))
			for ctx := range inFlight {
				remaining = append(remaining, ctx)
			}
			mu.Unlock()
			close(finish)
			if cfg.Canceller != nil {
				for _, ctx := range remaining {
					cfg.Canceller(ctx)
				}
			}
		})
	}

dispatchLoop:
	for i := 0; i < cfg.Total; i++ {
		mu.Lock()
		stop := finished
		mu.Unlock()
		if stop {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-finish:
			break dispatchLoop
		}

		url, maxLen := cfg.URLGenerator(i)
		ctx := ContextInit(url, maxLen)

		mu.Lock()
		inFlight[ctx] = struct{}{}
		mu.Unlock()

		if err := d.Start(ctx); err != nil {
			<-sem
			mu.Lock()
			delete(inFlight, ctx)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(i int, ctx *Context) {
			defer wg.Done()
			defer func() { <-sem }()

			ctx.Wait(0)

			mu.Lock()
			delete(inFlight, ctx)
			mu.Unlock()

			if cfg.PostProcess != nil && cfg.PostProcess(i, ctx) == ResultFinish {
				triggerFinish()
			}
		}(i, ctx)
	}

	wg.Wait()

	if cfg.Canceller != nil {
		mu.Lock()
		remaining := make([]*Context, 0, len(inFlight))
		for ctx := range inFlight {
			remaining = append(remaining, ctx)
		}
		mu.Unlock()
		for _, ctx := range remaining {
			cfg.Canceller(ctx)
		}
	}

	return nil
}
