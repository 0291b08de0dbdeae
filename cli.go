package main

import (
	"time"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"

	"github.com/memberlift/memberlift/discord"
	"github.com/memberlift/memberlift/lib/logger"
)

// DiscordConfig holds the Discord application settings shared by the serve
// and transfer commands.
type DiscordConfig struct {
	// DiscordClientID is the OAuth2 application client id
	DiscordClientID string `name:"discord-client-id" help:"Discord application client id" env:"MEMBERLIFT_DISCORD_CLIENT_ID"`

	// DiscordClientSecret is the OAuth2 application client secret
	DiscordClientSecret string `name:"discord-client-secret" help:"Discord application client secret" env:"MEMBERLIFT_DISCORD_CLIENT_SECRET"`

	// DiscordRedirectURI is the redirect URI registered with the application
	DiscordRedirectURI string `name:"discord-redirect-uri" help:"OAuth2 redirect URI registered with the Discord application" env:"MEMBERLIFT_DISCORD_REDIRECT_URI"`

	// DiscordBotToken is the privileged token used for add-member calls
	DiscordBotToken string `name:"discord-bot-token" help:"Bot token with permission to add members to the target guild" env:"MEMBERLIFT_DISCORD_BOT_TOKEN"`

	// DiscordAPIURL overrides the API endpoint, used in tests only
	DiscordAPIURL string `name:"discord-api-url" hidden:"true" env:"MEMBERLIFT_DISCORD_API_URL"`
}

func (c DiscordConfig) clientConfig() discord.Config {
	return discord.Config{
		ClientID:     c.DiscordClientID,
		ClientSecret: c.DiscordClientSecret,
		RedirectURI:  c.DiscordRedirectURI,
		BotToken:     c.DiscordBotToken,
		APIURL:       c.DiscordAPIURL,
	}
}

// StorageConfig points at the credential store file.
type StorageConfig struct {
	// Storage is the path of the JSON document holding the credentials
	Storage string `help:"Path to the credential store file" default:"memberlift.db.json" env:"MEMBERLIFT_STORAGE"`
}

// ServeCmdConfig is the serve command description.
type ServeCmdConfig struct {
	DiscordConfig
	StorageConfig

	// Listen is the callback server listening address
	Listen string `help:"Address of the authorization callback server" default:":8080" env:"MEMBERLIFT_LISTEN"`

	// CertFile and KeyFile enable TLS on the callback server
	CertFile string `name:"https-cert-file" help:"TLS certificate file for the callback server" type:"existingfile" env:"MEMBERLIFT_CERT"`
	KeyFile  string `name:"https-key-file" help:"TLS key file for the callback server" type:"existingfile" env:"MEMBERLIFT_KEY"`

	// InsecureNoTLS serves the callback over plain HTTP
	InsecureNoTLS bool `name:"insecure-no-tls" help:"Serve the callback endpoint over plain HTTP"`
}

// TransferCmdConfig is the transfer command description.
type TransferCmdConfig struct {
	DiscordConfig
	StorageConfig

	// GuildID is the guild every authorized user is added to
	GuildID string `arg:"true" name:"guild-id" help:"ID of the target guild" required:"true"`

	// Concurrency bounds parallel per-user processing
	Concurrency int `help:"Number of users processed in parallel" default:"1" env:"MEMBERLIFT_CONCURRENCY"`

	// ProgressInterval is the cadence of progress log records
	ProgressInterval time.Duration `help:"Interval between progress reports" default:"1s" env:"MEMBERLIFT_PROGRESS_INTERVAL"`

	// RateLimit caps provider calls per second, 0 disables the cap
	RateLimit int `help:"Maximum Discord API calls per second, 0 to disable" default:"0" env:"MEMBERLIFT_RATE_LIMIT"`
}

// VersionCmdConfig is the version print command.
type VersionCmdConfig struct{}

// ConfigureCmdConfig is the example-config print command.
type ConfigureCmdConfig struct{}

// CLI represents command structure
type CLI struct {
	// Config is the path to configuration file
	Config kong.ConfigFlag `help:"Path to TOML configuration file" optional:"true" type:"existingfile" env:"MEMBERLIFT_CONFIG"`

	// Debug is a debug logging mode flag
	Debug bool `help:"Debug logging" short:"d"`

	// LogOutput routes log records to stderr, stdout or a file
	LogOutput string `name:"log-output" help:"Log output (stderr, stdout or a file path)" default:"stderr"`

	// LogSeverity is the minimum logged severity
	LogSeverity string `name:"log-severity" help:"Log severity (debug, info, warn, error)" default:"info"`

	// Version is the version print command
	Version VersionCmdConfig `cmd:"true" help:"Print the tool version"`

	// Configure is the example configuration print command
	Configure ConfigureCmdConfig `cmd:"true" help:"Print an example TOML configuration file"`

	// Serve is the authorization callback server command
	Serve ServeCmdConfig `cmd:"true" help:"Start the authorization callback server"`

	// Transfer runs one batch adding every authorized user to the guild
	Transfer TransferCmdConfig `cmd:"true" help:"Add every authorized user to the target guild"`
}

// setupLogging applies the logging flags of the parsed CLI.
func setupLogging(cli *CLI) error {
	conf := logger.Config{
		Output:   cli.LogOutput,
		Severity: cli.LogSeverity,
	}
	if cli.Debug {
		conf.Severity = "debug"
	}
	if err := logger.Setup(conf); err != nil {
		return trace.Wrap(err)
	}
	if cli.Debug {
		logger.Standard().Debugf("DEBUG logging enabled")
	}
	return nil
}
