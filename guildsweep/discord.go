package guildsweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var (
	ErrUnauthorized   = errors.New("unauthorized (check the configured token)")
	ErrRateLimited    = errors.New("rate limited")
	ErrTransport      = errors.New("request failed")
	ErrMissingGuildID = errors.New("guild has no ID")
)

// GuildDirectory is the remote side of guild membership: listing the
// account's guilds and leaving one. Implementations make exactly one
// request per call and never retry.
type GuildDirectory interface {
	// ListGuilds returns the guilds the account is a member of. Any
	// response other than 200 is an error.
	ListGuilds(ctx context.Context) ([]Guild, error)

	// LeaveGuild removes the account from the given guild. Every failure,
	// including transport errors, is reported through the returned
	// LeaveOutcome rather than an error.
	LeaveGuild(ctx context.Context, guildID string) LeaveOutcome
}

var _ GuildDirectory = (*DiscordDirectory)(nil)

// LeaveStatus classifies the result of a single leave request.
type LeaveStatus int

const (
	LeaveSuccess LeaveStatus = iota + 1
	LeaveRateLimited
	LeaveFailed
)

func (s LeaveStatus) String() string {
	switch s {
	case LeaveSuccess:
		return "success"
	case LeaveRateLimited:
		return "rate_limited"
	case LeaveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LeaveOutcome is the result of one leave request. RetryAfter is only
// set for LeaveRateLimited. For LeaveFailed, StatusCode is set when the
// API answered, and Err describes the failure.
type LeaveOutcome struct {
	Status     LeaveStatus
	RetryAfter time.Duration
	StatusCode int
	Err        error
}

func (o LeaveOutcome) String() string {
	switch o.Status {
	case LeaveSuccess:
		return "left"
	case LeaveRateLimited:
		return fmt.Sprintf("rate limited (retry after %s)", o.RetryAfter)
	case LeaveFailed:
		if o.StatusCode != 0 {
			return fmt.Sprintf("failed (status %d)", o.StatusCode)
		}
		if o.Err != nil {
			return fmt.Sprintf("failed (%s)", o.Err.Error())
		}
		return "failed"
	default:
		return "unknown"
	}
}

func (o LeaveOutcome) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("status", o.Status.String())}
	if o.RetryAfter > 0 {
		attrs = append(attrs, slog.Duration("retry_after", o.RetryAfter))
	}
	if o.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status_code", o.StatusCode))
	}
	if o.Err != nil {
		attrs = append(attrs, slog.String("error", o.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

func leaveFailed(statusCode int, err error) LeaveOutcome {
	return LeaveOutcome{Status: LeaveFailed, StatusCode: statusCode, Err: err}
}

// DiscordDirectory implements GuildDirectory against the Discord REST API.
//
// Requests go through a discordgo.Session's HTTP client, token, user
// agent and per-route rate limit buckets. Responses are interpreted here
// rather than by discordgo, so a 429 is returned to the caller (with the
// Retry-After header) instead of being slept on and retried.
type DiscordDirectory struct {
	session           *discordgo.Session
	apiBase           string
	defaultRetryAfter time.Duration
	logger            *slog.Logger
}

// NewDiscordDirectory creates a DiscordDirectory. If client is nil, one is
// created with config.RequestTimeout.
func NewDiscordDirectory(
	config *DiscordConfig,
	defaultRetryAfter time.Duration,
	client *http.Client,
	logger *slog.Logger,
) (*DiscordDirectory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(config.APIBase)
	if err != nil {
		return nil, fmt.Errorf("invalid api base %q: %w", config.APIBase, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base %q: missing scheme or host", config.APIBase)
	}

	session, err := discordgo.New(config.authorization())
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.StateEnabled = false
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 0
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}
	session.Client = client

	if config.DiscordGoLogLevel != nil {
		lvl, e := discordgoLogLevel(config.DiscordGoLogLevel.Level())
		if e != nil {
			return nil, e
		}
		session.LogLevel = lvl
	}

	apiBase := base.String()
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}

	return &DiscordDirectory{
		session:           session,
		apiBase:           apiBase,
		defaultRetryAfter: defaultRetryAfter,
		logger:            logger,
	}, nil
}

// endpointPath strips discordgo's absolute API prefix, leaving the path
// relative to the configured base.
func endpointPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, discordgo.EndpointAPI)
}

func (d *DiscordDirectory) ListGuilds(ctx context.Context) ([]Guild, error) {
	req, resp, body, err := d.request(
		ctx,
		http.MethodGet,
		endpointPath(discordgo.EndpointUserGuilds("@me")),
		discordgo.EndpointUserGuilds(""),
	)
	if err != nil {
		d.logger.DebugContext(ctx, "error listing guilds", tint.Err(err))
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		//
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), d.defaultRetryAfter)
		return nil, fmt.Errorf(
			"%w: retry after %s: %w",
			ErrRateLimited,
			retryAfter,
			newStatusError(req, resp, body),
		)
	default:
		return nil, newStatusError(req, resp, body)
	}

	var userGuilds []*discordgo.UserGuild
	if err = discordgo.Unmarshal(body, &userGuilds); err != nil {
		return nil, fmt.Errorf("%w: %w", discordgo.ErrJSONUnmarshal, err)
	}

	guilds := make([]Guild, 0, len(userGuilds))
	for _, ug := range userGuilds {
		if ug == nil {
			continue
		}
		g := Guild{ID: ug.ID, Name: ug.Name}
		if g.Name == "" {
			g.Name = unknownGuildName
		}
		guilds = append(guilds, g)
	}
	d.logger.DebugContext(ctx, "listed guilds", "count", len(guilds))
	return guilds, nil
}

func (d *DiscordDirectory) LeaveGuild(ctx context.Context, guildID string) (outcome LeaveOutcome) {
	logger := d.logger.With("guild_id", guildID)

	defer func() {
		if rc := recover(); rc != nil {
			outcome = leaveFailed(0, fmt.Errorf("%w: panic: %v", ErrTransport, rc))
			logger.ErrorContext(ctx, "recovered from panic leaving guild", "panic", rc)
		}
	}()

	if guildID == "" {
		return leaveFailed(0, ErrMissingGuildID)
	}

	req, resp, body, err := d.request(
		ctx,
		http.MethodDelete,
		endpointPath(discordgo.EndpointUserGuild("@me", url.PathEscape(guildID))),
		discordgo.EndpointUserGuild("", guildID),
	)
	if err != nil {
		logger.WarnContext(ctx, "error leaving guild", tint.Err(err))
		return leaveFailed(0, err)
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		logger.InfoContext(ctx, "left guild")
		return LeaveOutcome{Status: LeaveSuccess}
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), d.defaultRetryAfter)
		logger.WarnContext(ctx, "rate limited leaving guild", "retry_after", retryAfter)
		return LeaveOutcome{Status: LeaveRateLimited, RetryAfter: retryAfter}
	default:
		statusErr := newStatusError(req, resp, body)
		logger.WarnContext(
			ctx,
			"failed to leave guild",
			"status_code", resp.StatusCode,
			tint.Err(statusErr),
		)
		return leaveFailed(resp.StatusCode, statusErr)
	}
}

// request performs a single request with no body, holding the rate limit
// bucket for bucketID for its duration, the same way discordgo's own
// RequestWithLockedBucket does.
func (d *DiscordDirectory) request(
	ctx context.Context,
	method string,
	path string,
	bucketID string,
) (*http.Request, *http.Response, []byte, error) {
	urlStr := d.apiBase + path

	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if d.session.Token != "" {
		req.Header.Set("Authorization", d.session.Token)
	}
	req.Header.Set("User-Agent", d.session.UserAgent)

	bucket := d.session.Ratelimiter.LockBucket(bucketID)

	d.logger.DebugContext(ctx, "api request", "method", method, "url", urlStr)
	resp, err := d.session.Client.Do(req)
	if err != nil {
		_ = bucket.Release(nil)
		return req, nil, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err = bucket.Release(resp.Header); err != nil {
		d.logger.WarnContext(ctx, "unable to read rate limit headers", tint.Err(err))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return req, nil, nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	d.logger.DebugContext(
		ctx,
		"api response",
		"method", method,
		"url", urlStr,
		"status", resp.StatusCode,
	)
	return req, resp, body, nil
}

// newStatusError wraps a non-success response in a discordgo.RESTError.
// 401 responses are additionally marked with ErrUnauthorized.
func newStatusError(req *http.Request, resp *http.Response, body []byte) error {
	restErr := &discordgo.RESTError{
		Request:      req,
		Response:     resp,
		ResponseBody: body,
	}
	var msg *discordgo.APIErrorMessage
	if err := discordgo.Unmarshal(body, &msg); err == nil {
		restErr.Message = msg
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, restErr)
	}
	return restErr
}

// StatusCode returns the HTTP status code carried by err, if any.
func StatusCode(err error) (int, bool) {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode, true
	}
	return 0, false
}

// parseRetryAfter parses a Retry-After header value in (possibly
// fractional) seconds, returning def if it's missing or unusable.
func parseRetryAfter(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}
