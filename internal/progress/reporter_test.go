package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCIReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Out: &buf}
	r.Start(2)
	r.Update(1, "https://site/a")
	r.Update(2, "https://site/b")
	r.Finish()

	assert.Equal(t, "Crawling 2 pages\n[1/2] https://site/a\n[2/2] https://site/b\nCrawl complete\n", buf.String())
}

func TestTrackerStartsOnceAndIgnoresStaleUpdates(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&CIReporter{Out: &buf})

	tr.Progress(2, 3, "https://site/b")
	tr.Progress(1, 3, "https://site/a")
	tr.Progress(3, 3, "https://site/c")
	tr.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"Crawling 3 pages", "[2/3] https://site/b", "[3/3] https://site/c", "Crawl complete"}, lines)
}

func TestTrackerFinishWithoutProgress(t *testing.T) {
	var buf bytes.Buffer
	NewTracker(&CIReporter{Out: &buf}).Finish()
	assert.Empty(t, buf.String())
}

func TestTrackerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&CIReporter{Out: &buf})

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Progress(i, 20, "u")
		}()
	}
	wg.Wait()
	tr.Finish()

	assert.Equal(t, 1, strings.Count(buf.String(), "Crawling 20 pages"))
	assert.Contains(t, buf.String(), "Crawl complete")
}
