package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/state"
	"github.com/ShayCichocki/wayfinder/internal/tui"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

var (
	sessionsStatus    string
	sessionsEvents    int
	sessionsOlderThan time.Duration
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions",
	Args:    cobra.NoArgs,
	RunE:    runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded session and its latest events",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded session and its events",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions not updated within --older-than",
	Args:  cobra.NoArgs,
	RunE:  runSessionsPurge,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "Only list sessions with this status (idle, running, paused, completed)")
	sessionsShowCmd.Flags().IntVar(&sessionsEvents, "events", 20, "Number of events to show")
	sessionsPurgeCmd.Flags().DurationVar(&sessionsOlderThan, "older-than", 30*24*time.Hour, "Age threshold")
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsDeleteCmd, sessionsPurgeCmd)
}

func withStore(fn func(db *state.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	var filter *models.SessionStatus
	if sessionsStatus != "" {
		s := models.SessionStatus(sessionsStatus)
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", sessionsStatus)
		}
		filter = &s
	}
	return withStore(func(db *state.DB) error {
		sessions, err := db.ListSessions(cmd.Context(), filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions recorded.")
			return nil
		}
		fmt.Fprintln(out, tui.RenderSessions(sessions, time.Now()))
		return nil
	})
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	return withStore(func(db *state.DB) error {
		s, err := db.GetSession(cmd.Context(), args[0])
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no session %s", args[0])
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tui.RenderSession(*s, time.Now()))

		evs, err := db.ListEvents(cmd.Context(), s.ID, sessionsEvents)
		if err != nil {
			return err
		}
		if len(evs) > 0 {
			fmt.Fprintln(out)
		}
		for _, e := range evs {
			fmt.Fprintln(out, formatStoredEvent(e))
		}
		return nil
	})
}

func formatStoredEvent(e events.Event) string {
	line := fmt.Sprintf("%s  %-18s", e.Timestamp.Local().Format("15:04:05"), e.Type)
	switch {
	case e.TaskTitle != "":
		line += " " + e.TaskTitle
	case e.Message != "":
		line += " " + e.Message
	}
	if e.Error != "" {
		line += " " + color.RedString("(%s)", e.Error)
	}
	return line
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(db *state.DB) error {
		if err := db.DeleteSession(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("no session %s", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		return nil
	})
}

func runSessionsPurge(cmd *cobra.Command, args []string) error {
	return withStore(func(db *state.DB) error {
		n, err := db.PurgeOldSessions(sessionsOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d session(s)\n", n)
		return nil
	})
}
