package app

import (
	"context"
	"log/slog"

	"github.com/keyxmakerx/parlor/internal/config"
	"github.com/keyxmakerx/parlor/internal/plugins/auth"
)

// BuildProviders returns the identity providers configured in cfg. An OIDC
// issuer that cannot be discovered is logged and skipped; local login
// keeps working without it.
func BuildProviders(ctx context.Context, cfg *config.Config) []auth.ProfileExchanger {
	var providers []auth.ProfileExchanger

	if cfg.GitHub.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(cfg.GitHub))
		slog.Info("login provider enabled", slog.String("provider", "github"))
	}

	if cfg.OIDC.Enabled() {
		p, err := auth.NewOIDCProvider(ctx, cfg.OIDC)
		if err != nil {
			slog.Warn("OIDC provider disabled", slog.Any("error", err))
		} else {
			providers = append(providers, p)
			slog.Info("login provider enabled", slog.String("provider", p.Name()))
		}
	}

	return providers
}
