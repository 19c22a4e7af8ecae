package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
)

func bootstrapCmd() *cobra.Command {
	var household, email, name string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a household with its dictator and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return store.ErrEmailRequired
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			h, err := store.NewHouseholdStore(e.db).Create(strings.TrimSpace(household))
			if err != nil {
				return err
			}
			token, err := addMember(cmd.Context(), e, h.ID, email, name, model.RoleDictator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "household %d created\nsession token: %s\n", h.ID, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&household, "household", "", "household name")
	cmd.Flags().StringVar(&email, "email", "", "dictator email")
	cmd.Flags().StringVar(&name, "name", "", "dictator display name")
	cmd.MarkFlagRequired("household")
	cmd.MarkFlagRequired("email")
	return cmd
}

func addMemberCmd() *cobra.Command {
	var (
		householdID int64
		email, name string
		role        string
	)
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user to a household and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q (want dictator, approver or doer)", role)
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			h, err := store.NewHouseholdStore(e.db).GetByID(householdID)
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("household %d not found", householdID)
			}
			token, err := addMember(cmd.Context(), e, h.ID, email, name, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session token: %s\n", token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&householdID, "household-id", 0, "household id")
	cmd.Flags().StringVar(&email, "email", "", "member email")
	cmd.Flags().StringVar(&name, "name", "", "member display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleDoer), "dictator, approver or doer")
	cmd.MarkFlagRequired("household-id")
	cmd.MarkFlagRequired("email")
	return cmd
}

// addMember finds or creates the user, adds them to the household, and
// opens a session in it.
func addMember(ctx context.Context, e *env, householdID int64, email, name string, role model.Role) (string, error) {
	user, created, err := store.NewUserStore(e.db).FindOrCreate(ctx, email, name)
	if err != nil {
		return "", err
	}

	if _, err := store.NewHouseholdStore(e.db).AddMember(householdID, user.ID, role); err != nil {
		return "", err
	}
	sess, err := store.NewSessionStore(e.db).Create(user.ID, householdID)
	if err != nil {
		return "", err
	}
	e.logger.Info("member added", "household_id", householdID, "user_id", user.ID, "role", role, "new_user", created)
	return sess.Token, nil
}
