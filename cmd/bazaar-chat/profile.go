// ABOUTME: The profile and whoami commands
// ABOUTME: Shows any actor's profile and updates the signed-in actor's own

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/bazaar-gateway/internal/dm"
	"github.com/2389/bazaar-gateway/internal/store"
)

var (
	profileName   string
	profileAvatar string
)

var profileCmd = &cobra.Command{
	Use:   "profile [ACTOR]",
	Short: "Show a profile, or update yours with --name and --avatar",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := connect(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		updating := cmd.Flags().Changed("name") || cmd.Flags().Changed("avatar")
		if updating {
			if len(args) == 1 && args[0] != e.actorID {
				return fmt.Errorf("%w: you can only update your own profile", dm.ErrForbidden)
			}
			name := strings.TrimSpace(profileName)
			avatar := profileAvatar
			if current, err := e.api.GetProfile(ctx, e.actorID); err == nil {
				if !cmd.Flags().Changed("name") {
					name = current.DisplayName
				}
				if !cmd.Flags().Changed("avatar") {
					avatar = current.AvatarURL
				}
			}
			p, err := e.api.UpdateProfile(ctx, name, avatar)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Print("✓ ")
			printProfile(p)
			return nil
		}

		actorID := e.actorID
		if len(args) == 1 {
			actorID = args[0]
		}
		p, err := e.api.GetProfile(ctx, actorID)
		if err != nil {
			if dm.IsNotFound(dm.Classify(err)) {
				return fmt.Errorf("%s has no profile", actorID)
			}
			return err
		}
		printProfile(p)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the signed-in actor id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		fmt.Println(e.actorID)
		return nil
	},
}

func init() {
	profileCmd.Flags().StringVarP(&profileName, "name", "n", "", "New display name")
	profileCmd.Flags().StringVar(&profileAvatar, "avatar", "", "New avatar URL")
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func printProfile(p *store.Profile) {
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint(p.DisplayName), color.HiBlackString("("+p.ActorID+")"))
	if p.AvatarURL != "" {
		fmt.Printf("  avatar: %s\n", p.AvatarURL)
	}
}
