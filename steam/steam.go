package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/marcus-crane/steamcharts/utils"
)

const (
	DefaultAPIBaseURL = "https://api.steampowered.com"

	rankingPath = "/ISteamChartsService/GetGamesByConcurrentPlayers/v1/"
	appListPath = "/IStoreService/GetAppList/v1/"
)

type Client struct {
	APIBaseURL string
	HTTPClient *http.Client
	Token      string
}

func NewClient(token string) *Client {
	return &Client{
		APIBaseURL: DefaultAPIBaseURL,
		HTTPClient: utils.NewHTTPClient(),
		Token:      token,
	}
}

// RankingURL points at the concurrent players chart. An empty token still
// produces a URL, Steam will reject it with a non-2xx status.
func (c *Client) RankingURL() string {
	q := url.Values{}
	q.Set("key", c.Token)
	return c.APIBaseURL + rankingPath + "?" + q.Encode()
}

// AppListURL points at the first page of the store catalog, games only.
func (c *Client) AppListURL() string {
	q := url.Values{}
	q.Set("key", c.Token)
	q.Set("include_games", "true")
	return c.APIBaseURL + appListPath + "?" + q.Encode()
}

// WithCursor adds the last_appid pagination cursor to a catalog URL
func WithCursor(rawURL string, lastAppID int64) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("last_appid", strconv.FormatInt(lastAppID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get issues a single GET and returns whatever came back. Non-2xx statuses
// are not errors here, callers decide what they mean.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header = http.Header{
		"Accept":     []string{"application/json"},
		"User-Agent": []string{utils.UserAgent},
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{StatusCode: res.StatusCode}, fmt.Errorf("failed to read steam response: %w", err)
	}
	return Response{StatusCode: res.StatusCode, Body: body}, nil
}

// RankingEnvelope is the shape returned by GetGamesByConcurrentPlayers
type RankingEnvelope struct {
	Response RankingResponse `json:"response"`
}

type RankingResponse struct {
	Ranks []json.RawMessage `json:"ranks"`
}

// AppListEnvelope is one page of GetAppList. Apps are kept raw so that
// platform fields we don't model survive into the snapshot.
type AppListEnvelope struct {
	Response AppListResponse `json:"response"`
}

type AppListResponse struct {
	Apps            []json.RawMessage `json:"apps"`
	HaveMoreResults bool              `json:"have_more_results"`
	LastAppID       *int64            `json:"last_appid"`
}

// CatalogEnvelope is the shape persisted for the aggregated catalog
type CatalogEnvelope struct {
	AppList CatalogList `json:"applist"`
}

type CatalogList struct {
	Apps []json.RawMessage `json:"apps"`
}
