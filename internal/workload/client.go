package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoint paths of the social network's wrk2 API.
const (
	PathRegister     = "/wrk2-api/user/register"
	PathFollow       = "/wrk2-api/user/follow"
	PathUnfollow     = "/wrk2-api/user/unfollow"
	PathCompose      = "/wrk2-api/post/compose"
	PathHomeTimeline = "/wrk2-api/home-timeline/read"
	PathUserTimeline = "/wrk2-api/user-timeline/read"
)

// Operation names attached to recorded samples.
const (
	OpRegisterUser     = "RegisterUser"
	OpFollowUser       = "FollowUser"
	OpUnfollowUser     = "UnfollowUser"
	OpComposePost      = "ComposePost"
	OpReadHomeTimeline = "ReadHomeTimeline"
	OpReadUserTimeline = "ReadUserTimeline"
)

// Operations lists every operation name.
var Operations = []string{
	OpRegisterUser, OpFollowUser, OpUnfollowUser,
	OpComposePost, OpReadHomeTimeline, OpReadUserTimeline,
}

// IsOperation reports whether name is a known operation.
func IsOperation(name string) bool {
	for _, op := range Operations {
		if op == name {
			return true
		}
	}
	return false
}

const formContentType = "application/x-www-form-urlencoded"

// maxBodyBytes caps how much of a response body is kept for logging.
const maxBodyBytes = 4096

// Response is the outcome of a single endpoint call.
type Response struct {
	Operation  string
	StatusCode int
	Duration   time.Duration
	Bytes      int64
	Body       string
	Err        error
}

// OK reports whether the call returned 200.
func (r Response) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// Client issues form-encoded calls against one social network deployment.
// It holds no per-user state and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the target deployment.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, u SyntheticUser) Response {
	form := url.Values{}
	form.Set("user_id", strconv.FormatInt(u.UserID, 10))
	form.Set("username", u.Username)
	form.Set("first_name", u.FirstName)
	form.Set("last_name", u.LastName)
	form.Set("password", u.Password)
	return c.post(ctx, OpRegisterUser, PathRegister, form)
}

// Follow creates the edge follower -> followee.
func (c *Client) Follow(ctx context.Context, e FollowEdge) Response {
	return c.post(ctx, OpFollowUser, PathFollow, edgeForm(e))
}

// Unfollow removes the edge follower -> followee.
func (c *Client) Unfollow(ctx context.Context, e FollowEdge) Response {
	return c.post(ctx, OpUnfollowUser, PathUnfollow, edgeForm(e))
}

func edgeForm(e FollowEdge) url.Values {
	form := url.Values{}
	form.Set("user_id", strconv.FormatInt(e.FollowerID, 10))
	form.Set("followee_id", strconv.FormatInt(e.FolloweeID, 10))
	return form
}

// ComposePost publishes a post. Media lists are sent as JSON arrays.
func (c *Client) ComposePost(ctx context.Context, p Post) Response {
	mediaIDs, err := json.Marshal(nonNilInts(p.MediaIDs))
	if err != nil {
		return Response{Operation: OpComposePost, Err: fmt.Errorf("encode media_ids: %w", err)}
	}
	mediaTypes, err := json.Marshal(nonNilStrings(p.MediaTypes))
	if err != nil {
		return Response{Operation: OpComposePost, Err: fmt.Errorf("encode media_types: %w", err)}
	}

	form := url.Values{}
	form.Set("user_id", strconv.FormatInt(p.UserID, 10))
	form.Set("username", p.Username)
	form.Set("post_type", strconv.Itoa(p.PostType))
	form.Set("text", p.Text)
	form.Set("media_ids", string(mediaIDs))
	form.Set("media_types", string(mediaTypes))
	return c.post(ctx, OpComposePost, PathCompose, form)
}

// TimelineKind selects which timeline to read.
type TimelineKind int

const (
	HomeTimeline TimelineKind = iota
	UserTimeline
)

// ReadTimeline reads entries [start, stop) of a user's home or user timeline.
func (c *Client) ReadTimeline(ctx context.Context, kind TimelineKind, userID int64, start, stop int) Response {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	q.Set("start", strconv.Itoa(start))
	q.Set("stop", strconv.Itoa(stop))

	op, path := OpReadHomeTimeline, PathHomeTimeline
	if kind == UserTimeline {
		op, path = OpReadUserTimeline, PathUserTimeline
	}
	return c.do(ctx, op, http.MethodGet, path+"?"+q.Encode(), nil)
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values) Response {
	return c.do(ctx, op, http.MethodPost, path, form)
}

func (c *Client) do(ctx context.Context, op, method, pathAndQuery string, form url.Values) Response {
	res := Response{Operation: op}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		res.Err = fmt.Errorf("build %s request: %w", op, err)
		return res
	}
	if form != nil {
		req.Header.Set("Content-Type", formContentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Duration = time.Since(start)
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	head, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	rest, _ := io.Copy(io.Discard, resp.Body)
	res.Duration = time.Since(start)
	res.StatusCode = resp.StatusCode
	res.Bytes = int64(len(head)) + rest
	res.Body = string(head)
	return res
}

func nonNilInts(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
