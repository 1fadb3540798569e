package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/source"
)

// LoadResult holds the output of parsing a set of sample files.
type LoadResult struct {
	Samples     []model.Sample
	TotalFiles  int
	ParsedFiles int
	ParseErrors int
	FileErrors  int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// fileResult pairs a parse result with the file it came from.
type fileResult struct {
	file   source.DiscoveredFile
	result source.ParseResult
}

// Load discovers and parses every sample file under dir.
func Load(dir string, now time.Time, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	result := &LoadResult{TotalFiles: len(files)}
	for _, fr := range parseAll(files, now, 0, len(files), progressFn) {
		result.collect(fr.result)
	}
	return result, nil
}

func (r *LoadResult) collect(pr source.ParseResult) {
	if pr.Err != nil {
		r.FileErrors++
		return
	}
	r.ParsedFiles++
	r.ParseErrors += pr.ParseErrors
	r.Samples = append(r.Samples, pr.Samples...)
}

// parseAll parses files on a bounded worker pool. Results keep input order.
// offset and total shape the progress callback when only part of a larger
// set is parsed.
func parseAll(files []source.DiscoveredFile, now time.Time, offset, total int, progressFn ProgressFunc) []fileResult {
	if len(files) == 0 {
		return nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = fileResult{file: files[idx], result: source.ParseFile(files[idx], now)}
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n)+offset, total)
				}
			}
		}()
	}

	wg.Wait()
	return results
}
