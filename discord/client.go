package discord

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"github.com/memberlift/memberlift/auth/oauth"
	"github.com/memberlift/memberlift/auth/storage"
	"github.com/memberlift/memberlift/lib"
)

const discordMaxConns = 100
const discordHTTPTimeout = 10 * time.Second

// Scopes requested on every code exchange and refresh. guilds.join is what
// lets the privileged bot add the user to a guild later on.
const Scopes = "identify guilds guilds.join"

// Config stores the Discord application settings.
type Config struct {
	ClientID     string `toml:"client-id"`
	ClientSecret string `toml:"client-secret"`
	RedirectURI  string `toml:"redirect-uri"`
	// BotToken is the privileged instance token used for add-member calls.
	BotToken string `toml:"bot-token"`
	// APIURL overrides the Discord API endpoint, set only in tests.
	APIURL string `toml:"api-url"`
}

// CheckAndSetDefaults checks the config struct for any logical errors.
func (c *Config) CheckAndSetDefaults() error {
	if c.ClientID == "" {
		return trace.BadParameter("missing required value discord.client-id")
	}
	if c.ClientSecret == "" {
		return trace.BadParameter("missing required value discord.client-secret")
	}
	if c.RedirectURI == "" {
		return trace.BadParameter("missing required value discord.redirect-uri")
	}
	if c.BotToken == "" {
		return trace.BadParameter("missing required value discord.bot-token")
	}
	return nil
}

// Client implements the oauth.Provider capabilities against the Discord API.
type Client struct {
	client *resty.Client
	conf   Config
	clock  clockwork.Clock
}

var _ oauth.Provider = (*Client)(nil)

// NewClient initializes a Discord API client from the application config.
func NewClient(conf Config, clock clockwork.Clock) *Client {
	client := resty.
		NewWithClient(&http.Client{
			Timeout: discordHTTPTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     discordMaxConns,
				MaxIdleConnsPerHost: discordMaxConns,
			},
		}).
		SetHeader("Accept", "application/json")

	if endpoint := conf.APIURL; endpoint != "" {
		client.SetBaseURL(endpoint)
	} else {
		client.SetBaseURL("https://discord.com/api/v10")
	}
	client.OnAfterResponse(onAfterResponse)

	return &Client{
		client: client,
		conf:   conf,
		clock:  clock,
	}
}

// onAfterResponse maps Discord error payloads onto trace error classes.
// The token endpoint reports {"error", "error_description"}, the regular API
// reports {"message", "code"}, rate limits add "retry_after".
func onAfterResponse(_ *resty.Client, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	body := resp.Body()
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = gjson.GetBytes(body, "error_description").String()
	}
	if message == "" {
		message = string(body)
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		if gjson.GetBytes(body, "error").String() == "invalid_grant" {
			return trace.BadParameter("invalid_grant: %s", message)
		}
		return trace.BadParameter("discord rejected the request: %s", message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return trace.AccessDenied("discord denied access: %s (status: %d)", message, resp.StatusCode())
	case http.StatusNotFound:
		return trace.NotFound("%s", message)
	case http.StatusTooManyRequests:
		retryAfter := gjson.GetBytes(body, "retry_after").Float()
		return trace.LimitExceeded("discord rate limit hit, retry after %.2fs", retryAfter)
	}

	return trace.Errorf("discord API returned error: %s (code: %v, status: %d)",
		message, gjson.GetBytes(body, "code").Int(), resp.StatusCode())
}

// CheckHealth verifies that the privileged bot token is usable.
func (c *Client) CheckHealth(ctx context.Context) error {
	_, err := c.client.NewRequest().
		SetContext(ctx).
		SetHeader("Authorization", "Bot "+c.conf.BotToken).
		Get("/users/@me")
	if err != nil {
		return trace.Wrap(err, "health check failed, probably invalid bot token")
	}
	return nil
}

// Exchange swaps a single-use authorization code for user credentials.
func (c *Client) Exchange(ctx context.Context, authorizationCode string) (*storage.Credentials, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         authorizationCode,
		"redirect_uri": c.conf.RedirectURI,
		"scope":        Scopes,
	})
}

// Refresh consumes a refresh token and returns the rotated credentials.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*storage.Credentials, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"scope":         Scopes,
	})
}

func (c *Client) tokenRequest(ctx context.Context, form map[string]string) (*storage.Credentials, error) {
	form["client_id"] = c.conf.ClientID
	form["client_secret"] = c.conf.ClientSecret

	var result tokenResponse
	_, err := c.client.NewRequest().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		Post("/oauth2/token")
	if err != nil {
		return nil, trace.Wrap(err)
	}

	// ExpiresAt is always derived from the provider-reported lifetime,
	// relative to the local clock.
	return &storage.Credentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    c.clock.Now().UTC().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// FetchIdentity resolves the user id behind an access token.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (string, error) {
	var user User
	_, err := c.client.NewRequest().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get("/users/@me")
	if err != nil {
		return "", trace.Wrap(err)
	}
	return user.ID, nil
}

// AddMember adds the user to the target guild, acting as the user via their
// access token and authenticating the operation with the bot token. Discord
// responds 201 when the user is added and 204 when they are already there;
// both count as success.
func (c *Client) AddMember(ctx context.Context, accessToken string, userID string, guildID string) error {
	_, err := c.client.NewRequest().
		SetContext(ctx).
		SetHeader("Authorization", "Bot "+c.conf.BotToken).
		SetHeader("Content-Type", "application/json").
		SetBody(addMemberRequest{AccessToken: accessToken}).
		Put(lib.BuildURLPath("guilds", guildID, "members", userID))
	return trace.Wrap(err)
}
