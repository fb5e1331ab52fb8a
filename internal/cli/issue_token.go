package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/journeys-backend/internal/app"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
	"github.com/yungbote/journeys-backend/internal/services"
)

type issueTokenOptions struct {
	userID string
	role   string
	ttl    time.Duration
}

// NewIssueTokenCommand signs a bearer token with JWT_SECRET_KEY. It exists for
// local development against a service that shares the secret.
func NewIssueTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &issueTokenOptions{}
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(opts.userID)
			if err != nil {
				return fmt.Errorf("invalid --user %q: %w", opts.userID, err)
			}
			switch opts.role {
			case ctxutil.RoleMember, ctxutil.RoleManager, ctxutil.RoleAdmin:
			default:
				return fmt.Errorf("invalid --role %q", opts.role)
			}
			cfg, err := app.LoadConfig(rootOpts.log)
			if err != nil {
				return err
			}
			if cfg.JWTSecretKey == "" {
				return errors.New("JWT_SECRET_KEY is not set")
			}
			auth := services.NewAuthService(rootOpts.log, cfg.JWTSecretKey, cfg.JWTIssuer)
			token, err := auth.IssueAccessToken(userID, opts.role, opts.ttl)
			if err != nil {
				return err
			}
			return writeResult(cmd, rootOpts, map[string]string{"token": token}, token)
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id (uuid)")
	cmd.Flags().StringVar(&opts.role, "role", ctxutil.RoleMember, "member|manager|admin")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
