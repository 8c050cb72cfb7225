package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// softNotFoundMarker is the literal Vietnamese phrase a soft-404 HTML
// page uses in place of a real 404 status (spec.md §4.3).
const softNotFoundMarker = "không tồn tại"

var pageNumberLine = regexp.MustCompile(`^\s*\d+\s*$`)

// FetchPDFText downloads the PDF at url and returns its text with each
// page prefixed by a "--- Trang N ---" marker, honoring the size/time
// budgets and retry policy from spec.md §4.3.
func (e *Extractor) FetchPDFText(ctx context.Context, url string) (string, error) {
	if err := e.checkPDFSize(ctx, url); err != nil {
		return "", err
	}

	var lastErr error
	wait := e.budgets.RetryBaseWait
	for attempt := 1; attempt <= e.budgets.MaxRetries; attempt++ {
		text, err := e.downloadAndExtractPDF(ctx, url)
		if err == nil {
			return text, nil
		}
		if isNonRetryable(err) {
			return "", err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait += e.budgets.RetryBaseWait
	}
	return "", fmt.Errorf("fetch pdf %s: exhausted retries: %w", url, lastErr)
}

func (e *Extractor) checkPDFSize(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("build head request for %s: %w", url, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		// HEAD not supported by every server; fall through to GET-time check.
		return nil
	}
	defer drainAndClose(resp.Body)

	if resp.ContentLength > e.budgets.MaxPDFSize {
		return fmt.Errorf("skip pdf %s: size %d exceeds budget %d", url, resp.ContentLength, e.budgets.MaxPDFSize)
	}
	return nil
}

type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

func isNonRetryable(err error) bool {
	_, ok := err.(*nonRetryableError)
	return ok
}

func (e *Extractor) downloadAndExtractPDF(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budgets.PDFTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build get request for %s: %w", url, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download pdf %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", &nonRetryableError{fmt.Errorf("download pdf %s: status %d", url, resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("download pdf %s: status %d", url, resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("read pdf body %s: %w", url, err)
	}
	data := buf.Bytes()

	if len(data) < 4 || string(data[:4]) != "%PDF" {
		if looksLikeSoftNotFound(data) {
			return "", &nonRetryableError{fmt.Errorf("soft 404 for pdf %s", url)}
		}
		return "", &nonRetryableError{fmt.Errorf("content at %s is not a valid pdf", url)}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf reader %s: %w", url, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("--- Trang %d ---\n", i))
		sb.WriteString(normalizePageText(text))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func looksLikeSoftNotFound(data []byte) bool {
	return strings.Contains(string(data), softNotFoundMarker)
}

func normalizePageText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || pageNumberLine.MatchString(trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
