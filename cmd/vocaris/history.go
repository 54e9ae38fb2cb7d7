package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/ledger"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past meetings",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	historyLimit  int
	historyOffset int
	historyLocal  bool
	historyJSON   bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum meetings to list (1-100)")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Meetings to skip")
	historyCmd.Flags().BoolVar(&historyLocal, "local", false, "List meetings started from this machine instead of asking the backend")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyOffset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	if historyLocal {
		return runLocalHistory(cmd, a)
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	history, err := client.History(cmd.Context(), historyLimit, historyOffset)
	if err != nil {
		return fmt.Errorf("meeting history: %w", err)
	}
	if historyJSON {
		if history.Meetings == nil {
			history.Meetings = []backend.HistoryEntry{}
		}
		return encodeJSONToStdout(history)
	}
	if len(history.Meetings) == 0 {
		fmt.Println("No meetings found.")
		return nil
	}
	fmt.Print(formatHistoryTable(history.Meetings))
	return nil
}

func formatHistoryTable(entries []backend.HistoryEntry) string {
	builder := ui.NewTableBuilder([]string{"BOT", "STATUS", "MODE", "STARTED", "MEETING"}, len(entries))
	for _, entry := range entries {
		mode := "chat"
		if entry.IsScrum {
			mode = "scrum"
		}
		builder.AddRow(
			entry.BotID,
			internalstrings.FirstNonBlank(entry.Status, "-"),
			mode,
			internalstrings.FirstNonBlank(entry.StartedAt, "-"),
			internalstrings.FirstNonBlank(entry.Title, entry.MeetingURL),
		)
	}
	return builder.String()
}

func runLocalHistory(cmd *cobra.Command, a *app) error {
	l, err := a.openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	meetings, err := l.Meetings(cmd.Context(), backend.ClampHistoryLimit(historyLimit)+historyOffset)
	if err != nil {
		return err
	}
	if historyOffset >= len(meetings) {
		meetings = nil
	} else {
		meetings = meetings[historyOffset:]
	}

	if historyJSON {
		if meetings == nil {
			meetings = []ledger.Meeting{}
		}
		return encodeJSONToStdout(meetings)
	}
	if len(meetings) == 0 {
		fmt.Println("No meetings recorded on this machine.")
		return nil
	}
	fmt.Print(formatLedgerTable(meetings, time.Now()))
	return nil
}

func formatLedgerTable(meetings []ledger.Meeting, now time.Time) string {
	builder := ui.NewTableBuilder([]string{"BOT", "MODE", "STARTED", "DURATION", "MEETING"}, len(meetings))
	for _, m := range meetings {
		mode := "chat"
		if m.IsScrum {
			mode = "scrum"
		}
		duration := "in progress"
		if m.EndedAt != nil {
			duration = ui.FormatDurationShort(m.EndedAt.Sub(m.StartedAt))
		}
		builder.AddRow(m.BotID, mode, ui.FormatTimeAgo(m.StartedAt, now), duration, m.MeetingURL)
	}
	return builder.String()
}
