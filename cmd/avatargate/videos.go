package main

import (
	"fmt"
	"strings"

	"github.com/avatargate/avatargate/internal/artifact"
	"github.com/avatargate/avatargate/internal/store"
	"github.com/spf13/cobra"
)

const maxQueryWidth = 48

func newVideosCommand(ctx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:   "videos",
		Short: "Inspect generated videos",
	}
	videosCmd.AddCommand(newVideosListCommand(ctx))
	return videosCmd
}

func newVideosListCommand(ctx *commandContext) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's videos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.SQLiteStore) error {
				u, err := st.GetUserByUsername(cmd.Context(), username)
				if err != nil {
					return err
				}
				if u == nil {
					return fmt.Errorf("user %q not found", username)
				}
				videos, err := st.ListVideos(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(videos) == 0 {
					fmt.Fprintf(out, "No videos for %s\n", u.Username)
					return nil
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					rows = append(rows, []string{
						fmt.Sprintf("%d", v.ID),
						artifact.URL(v.Filename),
						truncate(v.Query, maxQueryWidth),
						v.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "URL", "Query", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Owner of the videos")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
