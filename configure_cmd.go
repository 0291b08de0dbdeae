package main

import "fmt"

const exampleConfig = `# Example memberlift configuration TOML file
storage = "/var/lib/memberlift/memberlift.db.json" # Credential store file

[discord]
client-id = "000000000000000000"             # Discord application client id
client-secret = "discord-app-client-secret"  # Discord application client secret
redirect-uri = "https://memberlift.example.com/callback" # Registered OAuth2 redirect URI
bot-token = "discord-bot-token"              # Bot token with the create-instant-invite permission

listen = ":8080"                     # Callback server listen address
https-key-file = "/var/lib/memberlift/privkey.pem"   # TLS private key
https-cert-file = "/var/lib/memberlift/fullchain.pem" # TLS certificate

[log]
output = "stderr" # Logger output. Could be "stdout", "stderr" or "/var/lib/memberlift/memberlift.log"
severity = "INFO" # Logger severity. Could be "INFO", "ERROR", "DEBUG" or "WARN".
`

// Run prints an example configuration file to stdout.
func (c *ConfigureCmdConfig) Run() error {
	fmt.Print(exampleConfig)
	return nil
}
