package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cerberusgate/cerberusgate/internal/domain/auth"
	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

// CredentialResolver authenticates an inbound bearer token against the
// credential store and produces the AgentContext the rest of the pipeline
// runs under. Every failure mode -- missing header, malformed scheme,
// unknown digest, revoked, inactive, expired, orphaned workspace --
// collapses to the single governance.ErrInvalidCredential sentinel so
// nothing about why a credential failed leaks to the caller.
type CredentialResolver struct {
	credentials governance.CredentialStore
	logger      *slog.Logger
}

// NewCredentialResolver builds a resolver over the given credential store.
func NewCredentialResolver(credentials governance.CredentialStore, logger *slog.Logger) *CredentialResolver {
	return &CredentialResolver{credentials: credentials, logger: logger}
}

// Resolve parses an "Authorization: Bearer <token>" header value and
// resolves it to an AgentContext. The SHA-256 digest is tried first (a
// single indexed lookup); if that misses, every stored credential is
// linear-scanned through auth.VerifyKey to support Argon2id-hashed
// credentials, which cannot be looked up by a deterministic digest of the
// presented token.
func (r *CredentialResolver) Resolve(ctx context.Context, authorizationHeader string) (governance.AgentContext, error) {
	token, ok := bearerToken(authorizationHeader)
	if !ok {
		return governance.AgentContext{}, governance.ErrInvalidCredential
	}

	cred, ws, err := r.credentials.FindByTokenHash(ctx, auth.HashKey(token))
	if err != nil {
		cred, ws, err = r.scanForArgon2id(ctx, token)
		if err != nil {
			return governance.AgentContext{}, governance.ErrInvalidCredential
		}
	}

	if !cred.Valid(time.Now()) {
		return governance.AgentContext{}, governance.ErrInvalidCredential
	}
	if ws == nil || ws.Tombstoned() || !ws.Active {
		return governance.AgentContext{}, governance.ErrInvalidCredential
	}

	go r.bumpUsage(cred.ID)

	return governance.AgentContext{
		AgentID:        cred.ID,
		AgentName:      cred.Name,
		WorkspaceID:    ws.ID,
		OrganisationID: ws.OrganisationID,
		UpstreamURL:    ws.UpstreamURL,
	}, nil
}

func (r *CredentialResolver) scanForArgon2id(ctx context.Context, token string) (*governance.AgentCredential, *governance.Workspace, error) {
	all, err := r.credentials.Credentials(ctx)
	if err != nil {
		return nil, nil, governance.ErrInvalidCredential
	}
	for i := range all {
		cred := &all[i]
		if auth.DetectHashType(cred.TokenHash) != "argon2id" {
			continue
		}
		match, err := auth.VerifyKey(token, cred.TokenHash)
		if err != nil || !match {
			continue
		}
		_, ws, err := r.credentials.FindByTokenHash(ctx, cred.TokenHash)
		if err != nil {
			return nil, nil, err
		}
		return cred, ws, nil
	}
	return nil, nil, governance.ErrInvalidCredential
}

// bumpUsage records credential usage fire-and-forget; a failure here must
// never surface to the calling request.
func (r *CredentialResolver) bumpUsage(credentialID string) {
	if err := r.credentials.BumpUsage(context.Background(), credentialID); err != nil && r.logger != nil {
		r.logger.Debug("failed to bump credential usage", "credential_id", credentialID, "error", err)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
