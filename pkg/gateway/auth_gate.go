package gateway

import (
	"github.com/mahaj/dupahar-dm/pkg/auth"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TokenValidator checks a credential and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthGate turns an open channel into an authenticated one. Identity is never
// stored on the channel; it is always read back from the Registry.
type AuthGate struct {
	tokens   TokenValidator
	registry *Registry
	presence *Broadcaster
	metrics  *Metrics
	log      zerolog.Logger
}

func NewAuthGate(tokens TokenValidator, reg *Registry, presence *Broadcaster, metrics *Metrics, log zerolog.Logger) *AuthGate {
	return &AuthGate{tokens: tokens, registry: reg, presence: presence, metrics: metrics, log: log}
}

// Authenticate validates credential and binds ch to its user. The Registry is
// not touched when the credential is rejected.
func (g *AuthGate) Authenticate(ch *Channel, credential string) (model.Session, error) {
	claims, err := g.tokens.ValidateToken(auth.StripBearer(credential))
	if err != nil {
		g.metrics.auth.WithLabelValues(resultFailed).Inc()
		g.log.Info().Err(err).Str("conn", ch.ID()).Msg("Authentication rejected")
		return model.Session{}, fail(ErrAuthentication, credentialMessage(err), err)
	}

	if sess, ok := g.registry.SessionFor(ch.ID()); ok {
		if sess.UserID != claims.UserID {
			g.metrics.auth.WithLabelValues(resultFailed).Inc()
			return model.Session{}, reject(ErrAuthentication, "Connection is already authenticated as another user")
		}
		// Same identity again: nothing changes, the client just gets a fresh snapshot.
		g.metrics.auth.WithLabelValues(resultOK).Inc()
		_ = g.presence.SnapshotTo(ch)
		return sess, nil
	}

	sess, err := g.presence.Join(claims.UserID, ch)
	if err != nil {
		return model.Session{}, fail(ErrAuthentication, "Connection closed", err)
	}
	g.metrics.auth.WithLabelValues(resultOK).Inc()
	g.log.Info().Str("user", sess.UserID).Str("conn", ch.ID()).Uint64("seq", sess.Seq).Msg("User authenticated")
	return sess, nil
}

// Require returns the session bound to ch or ErrNotAuthenticated.
func (g *AuthGate) Require(ch *Channel) (model.Session, error) {
	sess, ok := g.registry.SessionFor(ch.ID())
	if !ok {
		return model.Session{}, reject(ErrNotAuthenticated, "Not authenticated")
	}
	return sess, nil
}

func credentialMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Missing token"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	}
	return "Invalid token"
}
