package arxiv

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sightline/internal/models"
	"sightline/internal/util"

	"github.com/ledongthuc/pdf"
)

const (
	defaultMetadataBase = "https://export.arxiv.org/api/query"
	defaultPDFBase      = "https://arxiv.org/pdf"
)

// Client fetches arXiv papers and normalizes them into models.Paper.
type Client struct {
	metadataBase string
	pdfBase      string
	http         *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		metadataBase: defaultMetadataBase,
		pdfBase:      defaultPDFBase,
		http:         &http.Client{Timeout: timeout},
	}
}

// ExtractID derives the arXiv identifier from an /abs/ or /pdf/ URL. The
// mapping is deterministic: the same URL always yields the same identifier.
func ExtractID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", util.ErrInvalidSource)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrInvalidSource, err)
	}
	if !strings.Contains(u.Host, "arxiv.org") {
		return "", fmt.Errorf("%w: not an arxiv.org url", util.ErrInvalidSource)
	}
	path := strings.Trim(u.Path, "/")
	switch {
	case strings.HasPrefix(path, "abs/"):
		id := strings.TrimPrefix(path, "abs/")
		if id == "" {
			return "", fmt.Errorf("%w: missing paper id", util.ErrInvalidSource)
		}
		return id, nil
	case strings.HasPrefix(path, "pdf/"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "pdf/"), ".pdf")
		if id == "" {
			return "", fmt.Errorf("%w: missing paper id", util.ErrInvalidSource)
		}
		return id, nil
	default:
		return "", fmt.Errorf("%w: unsupported arxiv url format", util.ErrInvalidSource)
	}
}

// Fetch retrieves metadata and full text for the paper behind raw. Metadata
// comes from the arXiv Atom export API, full text from the PDF. When the API
// carries no abstract, the first segment of the body text stands in for it.
func (c *Client) Fetch(ctx context.Context, raw string) (models.Paper, error) {
	id, err := ExtractID(raw)
	if err != nil {
		return models.Paper{}, err
	}

	meta, err := c.fetchMetadata(ctx, id)
	if err != nil {
		return models.Paper{}, err
	}

	text, err := c.fetchText(ctx, id)
	if err != nil {
		return models.Paper{}, err
	}

	abstract := meta.Abstract
	if abstract == "" {
		abstract = firstSegment(text, 1200)
	}
	return models.Paper{
		PaperID:  id,
		URL:      raw,
		Title:    meta.Title,
		Authors:  meta.Authors,
		Abstract: abstract,
		Text:     text,
	}, nil
}

type metadata struct {
	Title    string
	Authors  []string
	Abstract string
}

func (c *Client) fetchMetadata(ctx context.Context, id string) (metadata, error) {
	endpoint := c.metadataBase + "?id_list=" + url.QueryEscape(id)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return metadata{}, err
	}
	meta, err := parseAtom(body)
	if err != nil {
		return metadata{}, fmt.Errorf("%w: %v", util.ErrInvalidSource, err)
	}
	return meta, nil
}

func (c *Client) fetchText(ctx context.Context, id string) (string, error) {
	body, err := c.get(ctx, c.pdfBase+"/"+id)
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", util.ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidSource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: paper not found", util.ErrInvalidSource)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", util.ErrFetchTimeout, err)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

func parseAtom(body []byte) (metadata, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return metadata{}, fmt.Errorf("decode atom feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return metadata{}, fmt.Errorf("no entry for paper id")
	}
	entry := feed.Entries[0]
	title := normalizeField(entry.Title)
	// The export API reports unknown ids as an entry titled "Error".
	if title == "" || strings.EqualFold(title, "error") {
		return metadata{}, fmt.Errorf("no paper matches the given id")
	}
	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := normalizeField(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	return metadata{
		Title:    title,
		Authors:  authors,
		Abstract: normalizeField(entry.Summary),
	}, nil
}

func normalizeField(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func firstSegment(text string, maxRunes int) string {
	if para := strings.Index(text, "\n\n"); para > 0 && para < maxRunes {
		return strings.TrimSpace(text[:para])
	}
	return util.Snippet(text, maxRunes)
}
