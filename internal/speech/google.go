package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultGoogleBaseURL = "https://translate.google.com"
	googleMaxChunkRunes  = 100
	userAgent            = "Mozilla/5.0 (compatible; dms-backend)"
)

// GoogleTTS streams speech from the Google Translate TTS endpoint, one
// request per text chunk, concatenating the MP3 frames.
type GoogleTTS struct {
	baseURL string
	client  *http.Client
}

// NewGoogleTTS builds a synthesizer. An empty baseURL uses the public endpoint.
func NewGoogleTTS(baseURL string, client *http.Client) *GoogleTTS {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleTTS{baseURL: baseURL, client: client}
}

// Synthesize returns a reader that yields MP3 bytes as each chunk arrives.
// A failure mid-stream surfaces as a read error.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, lang string) (io.ReadCloser, error) {
	chunks := SplitText(text, googleMaxChunkRunes)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	if lang = strings.TrimSpace(lang); lang == "" {
		lang = DefaultLang
	}

	pr, pw := io.Pipe()
	go func() {
		for i, chunk := range chunks {
			if err := g.fetchChunk(ctx, pw, chunk, lang, i, len(chunks)); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()
	return pr, nil
}

func (g *GoogleTTS) fetchChunk(ctx context.Context, w io.Writer, chunk, lang string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", lang)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
	q.Set("client", "tw-ob")
	q.Set("prev", "input")
	q.Set("ttsspeed", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("tts request chunk %d: %w", idx, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts chunk %d/%d: %w", idx+1, total, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("tts chunk %d/%d: status %d", idx+1, total, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("tts chunk %d/%d: copy: %w", idx+1, total, err)
	}
	return nil
}

var _ Synthesizer = (*GoogleTTS)(nil)
