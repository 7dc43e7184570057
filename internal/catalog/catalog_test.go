package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"regcal/internal/model"
)

const sampleFeed = `{
  "Report_Entry": [
    {
      "Course_Section": "CS 4516-A01 - Advanced Computer Networks",
      "Offering_Period": "2025 Fall A Term",
      "Course_Title": "CS 4516 - Advanced Computer Networks",
      "Subject": "Computer Science",
      "Meeting_Patterns": "M-R | 3:00 PM - 4:50 PM",
      "Locations": "Salisbury Labs 305",
      "Course_Section_Start_Date": "2025-08-21",
      "Course_Section_End_Date": "2025-10-10",
      "Instructors": "Jane Doe",
      "Instructional_Format": "Lecture"
    },
    {
      "Course_Section": "MA 1021-AL01 - Calculus I",
      "Offering_Period": "2025 Fall A Term",
      "Subject": "Mathematical Sciences; Core",
      "Meeting_Patterns": "M-T-R-F | 9:00 AM - 9:50 AM",
      "Locations": null,
      "Course_Section_Start_Date": "2025-08-21",
      "Course_Section_End_Date": "2025-10-10"
    }
  ]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	sections, err := Decode([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}

	cs := sections[0]
	if cs.Section != "CS 4516-A01 - Advanced Computer Networks" || cs.OfferingPeriod != "2025 Fall A Term" {
		t.Fatalf("unexpected key fields: %+v", cs)
	}
	if cs.MeetingPattern != "M-R | 3:00 PM - 4:50 PM" || cs.Location != "Salisbury Labs 305" {
		t.Fatalf("unexpected pattern/location: %+v", cs)
	}
	if cs.StartDate != "2025-08-21" || cs.EndDate != "2025-10-10" {
		t.Fatalf("unexpected dates: %+v", cs)
	}

	ma := sections[1]
	if ma.Location != "" || ma.Title != "" {
		t.Fatalf("expected missing/null fields to decode empty, got %+v", ma)
	}
	if got := ma.SubjectTags(); len(got) != 2 || got[0] != "Mathematical Sciences" || got[1] != "Core" {
		t.Fatalf("unexpected subject tags %v", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":            "",
		"not json":         "<html>",
		"no envelope":      `{"entries": []}`,
		"wrong type":       `{"Report_Entry": {}}`,
		"wrong field type": `{"Report_Entry": [{"Course_Section": 7}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			if !errors.Is(err, ErrMalformedFeed) {
				t.Fatalf("expected ErrMalformedFeed, got %v", err)
			}
		})
	}
}

func TestDecode_EmptyCatalog(t *testing.T) {
	t.Parallel()

	sections, err := Decode([]byte(`{"Report_Entry": []}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sections) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(sections))
	}
}

func TestIndex_Lookup(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]model.CourseSection{
		{Section: "CS 1101-A01 - Intro", OfferingPeriod: "2025 Fall A Term", Title: "first"},
		{Section: "CS 1101-A01 - Intro", OfferingPeriod: "2025 Fall B Term", Title: "other term"},
		{Section: "CS 1101-A01 - Intro", OfferingPeriod: "2025 Fall A Term", Title: "second"},
	})

	if idx.Len() != 2 || idx.Records() != 3 || idx.Duplicates() != 1 {
		t.Fatalf("unexpected counts len=%d records=%d dup=%d", idx.Len(), idx.Records(), idx.Duplicates())
	}

	got, ok := idx.Lookup("CS 1101-A01 - Intro", "2025 Fall A Term")
	if !ok || got.Title != "second" {
		t.Fatalf("expected last record to win, got %+v ok=%v", got, ok)
	}

	for _, miss := range [][2]string{
		{"cs 1101-A01 - Intro", "2025 Fall A Term"},
		{"CS 1101-A01 - Intro ", "2025 Fall A Term"},
		{"CS 1101-A01 - Intro", "2025 Spring"},
	} {
		if _, ok := idx.Lookup(miss[0], miss[1]); ok {
			t.Fatalf("expected no match for %q / %q", miss[0], miss[1])
		}
	}

	var nilIdx *Index
	if _, ok := nilIdx.Lookup("a", "b"); ok {
		t.Fatalf("expected nil index to miss")
	}
}

func TestFetcher_ConditionalCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, t.TempDir())

	first, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || string(first.Body) != sampleFeed {
		t.Fatalf("expected fresh body, got from_cache=%v", first.FromCache)
	}

	second, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || string(second.Body) != sampleFeed {
		t.Fatalf("expected cached body on 304, got from_cache=%v", second.FromCache)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestFetcher_Failures(t *testing.T) {
	t.Parallel()

	t.Run("non-OK status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewFetcher(srv.URL, t.TempDir()).Fetch(context.Background())
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("304 without cache", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		}))
		defer srv.Close()

		_, err := NewFetcher(srv.URL, "").Fetch(context.Background())
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("network error with cached body", func(t *testing.T) {
		dir := t.TempDir()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sampleFeed))
		}))
		f := NewFetcher(srv.URL, dir)
		if _, err := f.Fetch(context.Background()); err != nil {
			t.Fatalf("priming fetch: %v", err)
		}
		srv.Close()

		_, err := f.Fetch(context.Background())
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable even with a cached body, got %v", err)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := NewFetcher("", "").Fetch(context.Background())
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	body  string
	err   error
}

func (f *fakeSource) Fetch(context.Context) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return FetchResult{}, f.err
	}
	return FetchResult{Body: []byte(f.body)}, nil
}

func (f *fakeSource) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestStore_TTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	src := &fakeSource{body: sampleFeed}
	store := NewStore(src, 10*time.Minute, WithClock(clock))

	idx, err := store.Index(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", idx.Len())
	}

	if _, err := store.Index(context.Background()); err != nil {
		t.Fatalf("cached index: %v", err)
	}
	if src.count() != 1 {
		t.Fatalf("expected 1 fetch within TTL, got %d", src.count())
	}

	now = now.Add(10 * time.Minute)
	if _, err := store.Index(context.Background()); err != nil {
		t.Fatalf("refreshed index: %v", err)
	}
	if src.count() != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", src.count())
	}
}

func TestStore_FailureIsSurfaced(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: ErrUpstreamUnavailable}
	store := NewStore(src, time.Minute)

	if _, err := store.Snapshot(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	src.set(`{"Report_Entry": [`, nil)
	if _, err := store.Snapshot(context.Background()); !errors.Is(err, ErrMalformedFeed) {
		t.Fatalf("expected ErrMalformedFeed, got %v", err)
	}

	src.set(sampleFeed, nil)
	snap, err := store.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}
	if len(snap.Sections) != 2 || string(snap.Raw) != sampleFeed {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// A failed forced refresh keeps the installed snapshot.
	src.set("", errors.New("boom"))
	if _, err := store.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	again, err := store.Snapshot(context.Background())
	if err != nil || again != snap {
		t.Fatalf("expected previous snapshot to remain, got %v %v", again, err)
	}
}

func TestStore_ConcurrentCallersShareFetch(t *testing.T) {
	t.Parallel()

	src := &fakeSource{body: sampleFeed}
	store := NewStore(src, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Index(context.Background()); err != nil {
				t.Errorf("index: %v", err)
			}
		}()
	}
	wg.Wait()

	if src.count() != 1 {
		t.Fatalf("expected a single fetch, got %d", src.count())
	}
}
