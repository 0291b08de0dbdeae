package main

import (
	"context"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/memberlift/memberlift/auth/storage"
	"github.com/memberlift/memberlift/discord"
	"github.com/memberlift/memberlift/intake"
	"github.com/memberlift/memberlift/lib"
)

// Run starts the authorization callback server and blocks until a stop
// signal arrives or the server fails.
func (c *ServeCmdConfig) Run() error {
	ctx := context.Background()

	clientConf := c.clientConfig()
	if err := clientConf.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	store, err := storage.NewFileStore(c.Storage)
	if err != nil {
		return trace.Wrap(err)
	}

	client := discord.NewClient(clientConf, clockwork.NewRealClock())
	if err := client.CheckHealth(ctx); err != nil {
		return trace.Wrap(err)
	}
	log.Info("Discord API health check finished ok")

	registrar := intake.NewRegistrar(store, client)

	httpConf := lib.HTTPConfig{
		Listen:   c.Listen,
		CertFile: c.CertFile,
		KeyFile:  c.KeyFile,
		Insecure: c.InsecureNoTLS,
	}
	if err := httpConf.Check(); err != nil {
		return trace.Wrap(err)
	}
	srv, err := NewCallbackServer(httpConf, registrar)
	if err != nil {
		return trace.Wrap(err)
	}

	go lib.ServeSignals(ctx, srv, 15*time.Second)

	log.WithField("url", srv.CallbackURL()).Info("Starting the authorization callback server")
	return trace.Wrap(srv.Run(ctx))
}
