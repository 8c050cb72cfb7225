package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testExtractor() *Extractor {
	return New(Budgets{
		HTTPTimeout:   5 * time.Second,
		PDFTimeout:    5 * time.Second,
		MaxPDFSize:    50 * 1024 * 1024,
		MaxRetries:    1,
		RetryBaseWait: time.Millisecond,
	}, zerolog.Nop())
}

// TestFetchPDFTextSkipsOversizedFile mirrors spec.md §8's boundary:
// a file over the 50 MiB budget is skipped via the HEAD probe, never
// downloaded.
func TestFetchPDFTextSkipsOversizedFile(t *testing.T) {
	getCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.FormatInt(51*1024*1024, 10))
			w.WriteHeader(http.StatusOK)
			return
		}
		getCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := testExtractor()
	_, err := e.FetchPDFText(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected an error for an oversized PDF")
	}
	if getCalled {
		t.Error("GET should never be issued once the HEAD probe exceeds the size budget")
	}
}

func TestFetchPDFTextRejectsNonPDFContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte("<html><body>not a pdf</body></html>"))
	}))
	defer srv.Close()

	e := testExtractor()
	_, err := e.FetchPDFText(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected an error for non-PDF content")
	}
}

// TestFetchPDFTextSoftNotFoundIsNonRetryable mirrors spec.md §4.3's
// structural check: an HTML body containing the Vietnamese "not found"
// marker must not be retried.
func TestFetchPDFTextSoftNotFoundIsNonRetryable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls++
		w.Write([]byte("<html>Trang không tồn tại</html>"))
	}))
	defer srv.Close()

	e := testExtractor()
	e.budgets.MaxRetries = 3
	_, err := e.FetchPDFText(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected an error for a soft-404 page")
	}
	if calls != 1 {
		t.Errorf("GET calls = %d, want 1 (soft-404 must not retry)", calls)
	}
}

func TestFetchPDFTextDoesNotRetryOn4xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := testExtractor()
	e.budgets.MaxRetries = 3
	_, err := e.FetchPDFText(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if calls != 1 {
		t.Errorf("GET calls = %d, want 1 (4xx must not retry)", calls)
	}
}
