package discord

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/julienschmidt/httprouter"

	log "github.com/sirupsen/logrus"
)

type errorResult struct {
	Error       string  `json:"error,omitempty"`
	Description string  `json:"error_description,omitempty"`
	Message     string  `json:"message,omitempty"`
	Code        int     `json:"code,omitempty"`
	RetryAfter  float64 `json:"retry_after,omitempty"`
}

// FakeDiscord is an httptest-backed double of the few Discord API endpoints
// the client talks to. Authorization codes and refresh tokens are single-use,
// like the real thing.
type FakeDiscord struct {
	srv *httptest.Server

	objects sync.Mutex
	counter uint64

	codes           map[string]User
	refreshTokens   map[string]User
	accessTokens    map[string]User
	members         map[string]map[string]struct{}
	forbiddenGuilds map[string]struct{}
	rateLimitedOnce map[string]struct{}
	addMemberCalls  int
	botToken        string
}

func NewFakeDiscord(botToken string) *FakeDiscord {
	router := httprouter.New()

	discord := &FakeDiscord{
		codes:           make(map[string]User),
		refreshTokens:   make(map[string]User),
		accessTokens:    make(map[string]User),
		members:         make(map[string]map[string]struct{}),
		forbiddenGuilds: make(map[string]struct{}),
		rateLimitedOnce: make(map[string]struct{}),
		botToken:        botToken,
		srv:             httptest.NewServer(router),
	}

	router.POST("/oauth2/token", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		err := r.ParseForm()
		fatalIf(err)

		discord.objects.Lock()
		defer discord.objects.Unlock()

		var user User
		var ok bool
		switch r.PostFormValue("grant_type") {
		case "authorization_code":
			code := r.PostFormValue("code")
			user, ok = discord.codes[code]
			delete(discord.codes, code)
		case "refresh_token":
			token := r.PostFormValue("refresh_token")
			user, ok = discord.refreshTokens[token]
			delete(discord.refreshTokens, token)
		}
		if !ok {
			rw.WriteHeader(http.StatusBadRequest)
			writeJSON(rw, errorResult{Error: "invalid_grant", Description: "Invalid \"code\" in request."})
			return
		}

		discord.counter++
		accessToken := fmt.Sprintf("access-%v-%v", user.ID, discord.counter)
		refreshToken := fmt.Sprintf("refresh-%v-%v", user.ID, discord.counter)
		discord.accessTokens[accessToken] = user
		discord.refreshTokens[refreshToken] = user

		writeJSON(rw, tokenResponse{
			AccessToken:  accessToken,
			TokenType:    "Bearer",
			ExpiresIn:    604800,
			RefreshToken: refreshToken,
			Scope:        Scopes,
		})
	})

	router.GET("/users/@me", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		discord.objects.Lock()
		defer discord.objects.Unlock()

		auth := r.Header.Get("Authorization")
		if auth == "Bot "+discord.botToken {
			writeJSON(rw, User{ID: "bot", Username: "fake-bot"})
			return
		}
		user, ok := discord.accessTokens[bearerToken(auth)]
		if !ok {
			rw.WriteHeader(http.StatusUnauthorized)
			writeJSON(rw, errorResult{Message: "401: Unauthorized", Code: 0})
			return
		}
		writeJSON(rw, user)
	})

	router.PUT("/guilds/:guild_id/members/:user_id", func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		discord.objects.Lock()
		defer discord.objects.Unlock()

		discord.addMemberCalls++
		guildID := ps.ByName("guild_id")
		userID := ps.ByName("user_id")

		if r.Header.Get("Authorization") != "Bot "+discord.botToken {
			rw.WriteHeader(http.StatusUnauthorized)
			writeJSON(rw, errorResult{Message: "401: Unauthorized", Code: 0})
			return
		}
		if _, limited := discord.rateLimitedOnce[guildID]; limited {
			delete(discord.rateLimitedOnce, guildID)
			rw.WriteHeader(http.StatusTooManyRequests)
			writeJSON(rw, errorResult{Message: "You are being rate limited.", RetryAfter: 1.5})
			return
		}
		if _, forbidden := discord.forbiddenGuilds[guildID]; forbidden {
			rw.WriteHeader(http.StatusForbidden)
			writeJSON(rw, errorResult{Message: "Missing Permissions", Code: 50013})
			return
		}

		var body addMemberRequest
		err := json.NewDecoder(r.Body).Decode(&body)
		fatalIf(err)

		user, ok := discord.accessTokens[body.AccessToken]
		if !ok || user.ID != userID {
			rw.WriteHeader(http.StatusUnauthorized)
			writeJSON(rw, errorResult{Message: "401: Unauthorized", Code: 0})
			return
		}

		guild, ok := discord.members[guildID]
		if !ok {
			guild = make(map[string]struct{})
			discord.members[guildID] = guild
		}
		if _, already := guild[userID]; already {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		guild[userID] = struct{}{}
		rw.WriteHeader(http.StatusCreated)
		writeJSON(rw, map[string]interface{}{"user": user})
	})

	return discord
}

func (d *FakeDiscord) URL() string {
	return d.srv.URL
}

func (d *FakeDiscord) Close() {
	d.srv.Close()
}

// IssueCode registers a user and returns a fresh single-use authorization code.
func (d *FakeDiscord) IssueCode(user User) string {
	d.objects.Lock()
	defer d.objects.Unlock()

	d.counter++
	code := fmt.Sprintf("code-%v", d.counter)
	d.codes[code] = user
	return code
}

// SetForbiddenGuild makes add-member calls for the guild fail with 403.
func (d *FakeDiscord) SetForbiddenGuild(guildID string) {
	d.objects.Lock()
	defer d.objects.Unlock()
	d.forbiddenGuilds[guildID] = struct{}{}
}

// RateLimitNextAdd makes the next add-member call for the guild fail with 429.
func (d *FakeDiscord) RateLimitNextAdd(guildID string) {
	d.objects.Lock()
	defer d.objects.Unlock()
	d.rateLimitedOnce[guildID] = struct{}{}
}

func (d *FakeDiscord) HasMember(guildID, userID string) bool {
	d.objects.Lock()
	defer d.objects.Unlock()
	_, ok := d.members[guildID][userID]
	return ok
}

func (d *FakeDiscord) AddMemberCalls() int {
	d.objects.Lock()
	defer d.objects.Unlock()
	return d.addMemberCalls
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func writeJSON(rw http.ResponseWriter, value interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(rw).Encode(value)
	fatalIf(err)
}

func fatalIf(err error) {
	if err != nil {
		log.Fatalf("fatal error in fake discord: %v", err)
	}
}
