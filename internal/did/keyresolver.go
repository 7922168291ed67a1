package did

import (
	"context"
	"errors"
	"log/slog"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/petrijr/credflow/pkg/api"
)

// KeyResolver recovers the assertion (issuing) key of a PRISM DID.
type KeyResolver struct {
	docs   DocumentResolver
	logger *slog.Logger
}

// NewKeyResolver creates a KeyResolver. docs may be nil, in which case only
// long-form DIDs can be resolved, from their embedded state.
func NewKeyResolver(docs DocumentResolver, logger *slog.Logger) *KeyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyResolver{docs: docs, logger: logger}
}

// ResolveKey returns the public key that signs credentials for did.
//
// Long-form DIDs are decoded locally and also resolved remotely: the resolved
// key wins (it reflects rotations), deactivation fails hard, and any other
// resolution failure falls back to the local key. Short-form DIDs must
// resolve.
func (r *KeyResolver) ResolveKey(ctx context.Context, s string) (*secp256k1.PublicKey, error) {
	d, err := Parse(s)
	if err != nil {
		return nil, err
	}

	switch d.Form {
	case LongForm:
		local, localErr := DecodeLongForm(d)
		remote, remoteErr := r.resolveRemote(ctx, d.ShortForm())
		if remoteErr == nil {
			return remote, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(remoteErr, ErrDeactivated) {
			return nil, api.NewError(api.KindDeactivated, "issuer DID is deactivated", remoteErr)
		}
		if localErr != nil {
			return nil, localErr
		}
		r.logger.DebugContext(ctx, "did_local_key_fallback",
			slog.String("did", d.ShortForm()),
			slog.Any("error", remoteErr),
		)
		return local, nil

	default:
		key, err := r.resolveRemote(ctx, d.Raw)
		if err == nil {
			return key, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrDeactivated) {
			return nil, api.NewError(api.KindDeactivated, "issuer DID is deactivated", err)
		}
		if api.KindOf(err) != "" {
			return nil, err
		}
		return nil, api.NewError(api.KindResolution, "failed to resolve issuer DID", err)
	}
}

func (r *KeyResolver) resolveRemote(ctx context.Context, did string) (*secp256k1.PublicKey, error) {
	if r.docs == nil {
		return nil, ErrUnreachable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := r.docs.ResolveDocument(ctx, did)
	if err != nil {
		return nil, err
	}
	return doc.AssertionKey()
}
