package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/library-backend/internal/users"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operate the library lending backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newSweepCmd(e),
		newStatusCmd(e),
		newTokenCmd(e),
		newUserCmd(e),
		newDLQCmd(e),
	)
	return root
}

func newSweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Promote overdue loans and expire lapsed reservations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.loans.RunMaintenanceSweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <userId>",
		Short: "Print a member's borrowing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.loans.GetBorrowingStatus(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newTokenCmd(e *env) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user %q: %w", userID, err)
			}
			parsedRole, err := enums.ParseUserRole(role)
			if err != nil {
				return err
			}
			cfg, _, err := e.config()
			if err != nil {
				return err
			}
			if cfg.App.IsProd() {
				return fmt.Errorf("refusing to mint tokens in %s", cfg.App.Env)
			}
			jwtCfg := cfg.JWT
			if ttl > 0 {
				jwtCfg.ExpirationMinutes = int(ttl.Minutes())
			}
			token, err := auth.MintAccessToken(jwtCfg, time.Now(), auth.AccessTokenPayload{UserID: id, Role: parsedRole})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the token is issued for")
	cmd.Flags().StringVar(&role, "role", string(enums.UserRoleUser), "role claim: user, admin or super_admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "override the configured token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUserCmd(e *env) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage members",
	}

	var (
		username string
		email    string
		role     string
		status   string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a member record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedRole, err := enums.ParseUserRole(role)
			if err != nil {
				return err
			}
			parsedStatus, err := enums.ParseMembershipStatus(status)
			if err != nil {
				return err
			}
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.Create(cmd.Context(), users.CreateUserDTO{
				Username:         username,
				Email:            email,
				Role:             parsedRole,
				MembershipStatus: parsedStatus,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), users.FromModel(user))
		},
	}
	create.Flags().StringVar(&username, "username", "", "unique username")
	create.Flags().StringVar(&email, "email", "", "unique email address")
	create.Flags().StringVar(&role, "role", string(enums.UserRoleUser), "role: user, admin or super_admin")
	create.Flags().StringVar(&status, "status", string(enums.MembershipStatusApproved), "membership status: pending, approved or suspended")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")

	userCmd.AddCommand(create)
	return userCmd
}

func newDLQCmd(e *env) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and requeue dead-lettered loan events",
	}

	var (
		reason string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := enums.OutboxDLQErrorReason(reason)
			if filter != "" && !filter.IsValid() {
				return fmt.Errorf("invalid --reason %q", reason)
			}
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.dlq.List(cmd.Context(), filter, limit)
			if err != nil {
				return fmt.Errorf("list dlq: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
	list.Flags().StringVar(&reason, "reason", "", "only max_attempts or non_retryable entries")
	list.Flags().IntVar(&limit, "limit", 50, "maximum entries to print")

	requeue := &cobra.Command{
		Use:   "requeue <eventId>",
		Short: "Hand a dead-lettered event back to the outbox publisher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			event, err := a.dlq.Requeue(cmd.Context(), eventID)
			if errors.Is(err, outbox.ErrNotDeadLettered) {
				return fmt.Errorf("event %s has no dlq entry", eventID)
			}
			if err != nil {
				return fmt.Errorf("requeue: %w", err)
			}
			a.logg.Info(a.logg.WithFields(cmd.Context(), map[string]any{
				"event_id":   event.ID.String(),
				"event_type": string(event.EventType),
			}), "dead-lettered event requeued")
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"event_id":   event.ID,
				"event_type": event.EventType,
				"requeued":   true,
			})
		},
	}

	dlqCmd.AddCommand(list, requeue)
	return dlqCmd
}
