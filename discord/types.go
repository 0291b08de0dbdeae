package discord

// tokenResponse is the body returned by the OAuth2 token endpoint for both
// the authorization-code and the refresh-token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// User is the object returned by /users/@me.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
}

// addMemberRequest is the body of PUT /guilds/{guild.id}/members/{user.id}.
// The access token must carry the guilds.join scope.
type addMemberRequest struct {
	AccessToken string `json:"access_token"`
}
