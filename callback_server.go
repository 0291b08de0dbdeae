package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/memberlift/memberlift/intake"
	"github.com/memberlift/memberlift/lib"
)

const (
	callbackPath = "/callback"

	callbackTimeout = time.Second * 15
)

// CallbackServer accepts OAuth2 authorization redirects from Discord and
// hands the authorization codes to the registrar.
type CallbackServer struct {
	http      *lib.HTTP
	registrar *intake.Registrar
}

func NewCallbackServer(conf lib.HTTPConfig, registrar *intake.Registrar) (*CallbackServer, error) {
	httpSrv, err := lib.NewHTTP(conf)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	srv := &CallbackServer{
		http:      httpSrv,
		registrar: registrar,
	}
	srv.http.GET(callbackPath, srv.processCallback)
	return srv, nil
}

// CallbackURL returns the public URL users are redirected to after consent.
func (s *CallbackServer) CallbackURL() string {
	return s.http.NewURL(callbackPath, nil).String()
}

func (s *CallbackServer) Run(ctx context.Context) error {
	return s.http.ListenAndServe(ctx)
}

func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.http.ShutdownWithTimeout(ctx, time.Second*5)
}

func (s *CallbackServer) Close() {
	s.http.Close()
}

func (s *CallbackServer) processCallback(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), callbackTimeout)
	defer cancel()

	httpRequestID := uuid.New().String()
	log := log.WithField("discord_http_id", httpRequestID)

	code := r.URL.Query().Get("code")
	if code == "" {
		log.Warning("Callback request carries no authorization code")
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("No code provided"))
		return
	}

	userID, err := s.registrar.HandleAuthorization(ctx, code)
	if err != nil {
		log.WithError(err).Error("Failed to register authorization")
		log.Debugf("%v", trace.DebugReport(err))
		http.Error(rw, "", http.StatusBadRequest)
		return
	}

	log.WithField("user_id", userID).Info("Callback processed")
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("You have been registered to be transferred to a new guild in the future."))
}
