package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/livetui"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
	"github.com/vocaris/vocaris/meeting"
)

var startCmd = &cobra.Command{
	Use:   "start [meeting-url]",
	Short: "Send the assistant bot into a meeting",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current meeting and its bot",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current meeting and start generating results",
	Args:  cobra.NoArgs,
	RunE:  runEnd,
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the ended meeting's results are ready",
	Args:  cobra.NoArgs,
	RunE:  runWait,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the bot live and wait for results once the meeting ends",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var (
	startMeetingURL string
	startBotName    string
	startJSON       bool
	statusJSON      bool
	endConfirm      bool
	waitJSON        bool
	watchNoTUI      bool
	watchConfirm    bool
)

func init() {
	rootCmd.AddCommand(startCmd, statusCmd, endCmd, waitCmd, watchCmd)

	startCmd.Flags().StringVar(&startMeetingURL, "meeting-url", "", "Meeting URL to join")
	startCmd.Flags().StringVar(&startBotName, "bot-name", "", "Display name for the bot (default from config)")
	startCmd.Flags().BoolVar(&startJSON, "json", false, "Output as JSON")
	addMeetingURLFlagAliases(startCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	endCmd.Flags().BoolVar(&endConfirm, "confirm", false, "Ask the backend to remove the bot before ending locally")
	waitCmd.Flags().BoolVar(&waitJSON, "json", false, "Output readiness as JSON")
	watchCmd.Flags().BoolVar(&watchNoTUI, "no-tui", false, "Print status lines instead of the live screen")
	watchCmd.Flags().BoolVar(&watchConfirm, "confirm", false, "Ask the backend to remove the bot when ending from the live screen")
}

func runStart(cmd *cobra.Command, args []string) error {
	meetingURL, err := resolveMeetingURL(startMeetingURL, args)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, _, err := a.lifecycle()
	if err != nil {
		return err
	}
	if lc.Phase() == meeting.PhaseActive {
		previous, _ := lc.Session()
		warnf("replacing active meeting %s", previous.BotID)
	}

	session, err := lc.Start(cmd.Context(), backend.StartRequest{
		MeetingURL: meetingURL,
		BotName:    internalstrings.FirstNonBlank(startBotName, a.cfg.Backend.BotName),
	})
	if err != nil {
		return fmt.Errorf("start meeting: %w", err)
	}
	a.recordMeeting(cmd.Context(), session)

	if startJSON {
		return encodeJSONToStdout(session)
	}
	fmt.Printf("Started bot %s\n", session.BotID)
	printField("Meeting", session.MeetingURL)
	printField("Mode", sessionMode(session))
	return nil
}

func resolveMeetingURL(flagValue string, args []string) (string, error) {
	value := internalstrings.TrimSpace(flagValue)
	if len(args) > 0 {
		arg := internalstrings.TrimSpace(args[0])
		if value != "" && arg != value {
			return "", fmt.Errorf("meeting url given twice: %q and %q", arg, value)
		}
		value = arg
	}
	if value == "" {
		return "", fmt.Errorf("meeting url is required")
	}
	return value, nil
}

type statusOutput struct {
	Session   meeting.Session        `json:"session"`
	Phase     string                 `json:"phase"`
	Readiness meeting.Readiness      `json:"readiness"`
	Status    *backend.MeetingStatus `json:"status,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, client, err := a.lifecycle()
	if err != nil {
		return err
	}
	session, err := currentSession(lc)
	if err != nil {
		return err
	}
	readiness, err := lc.Readiness()
	if err != nil {
		return err
	}

	output := statusOutput{Session: session, Phase: lc.Phase().String(), Readiness: readiness}
	if lc.Phase() == meeting.PhaseActive {
		status, err := client.Status(cmd.Context(), session.BotID)
		if err != nil {
			return fmt.Errorf("meeting status: %w", err)
		}
		output.Status = &status
	}

	if statusJSON {
		return encodeJSONToStdout(output)
	}
	printField("Bot", session.BotID)
	printField("Session", session.SessionID)
	printField("Meeting", session.MeetingURL)
	printField("Mode", sessionMode(session))
	printField("Phase", output.Phase)
	if status := output.Status; status != nil {
		printField("Active", yesNo(status.IsActive))
		if status.BotInCall != nil {
			printField("In call", yesNo(*status.BotInCall))
		}
		printField("Uptime", ui.FormatUptime(status.UptimeSeconds))
		if status.TranscriptCount != nil {
			printField("Transcripts", fmt.Sprintf("%d", *status.TranscriptCount))
		}
	}
	if session.Ended() {
		printField("Ended", ui.FormatTimeAgo(session.EndedAt, time.Now()))
		printField("Chat", readyLabel(readiness.ChatReady))
		if session.IsScrum {
			printField("Scrum", readyLabel(readiness.ScrumReady))
		}
	}
	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, _, err := a.lifecycle()
	if err != nil {
		return err
	}
	if _, err := currentSession(lc); err != nil {
		return err
	}

	ended, err := lc.Finalize(cmd.Context(), meeting.FinalizeOptions{Confirm: endConfirm})
	if err != nil {
		return err
	}
	session, err := currentSession(lc)
	if err != nil {
		return err
	}
	if !ended {
		fmt.Printf("Meeting %s had already ended.\n", session.BotID)
		return nil
	}
	a.recordMeeting(cmd.Context(), session)
	fmt.Printf("Ended meeting %s. Results are being generated; run `vocaris wait`.\n", session.BotID)
	return nil
}

func runWait(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, _, err := a.lifecycle()
	if err != nil {
		return err
	}
	if _, err := currentSession(lc); err != nil {
		return err
	}
	return waitForResults(cmd.Context(), a, lc, waitJSON)
}

// waitForResults runs the readiness poller and reports what became ready.
// Reaching the attempt cap exits with status 2.
func waitForResults(ctx context.Context, a *app, lc *meeting.Lifecycle, asJSON bool) error {
	slowNoted := false
	poller := lc.ReadinessPoller(a.readinessOptions(func(tick meeting.ReadinessTick) {
		if tick.Done {
			return
		}
		fmt.Fprintf(os.Stderr, "Checking results (attempt %d)...\n", tick.Attempt)
		if tick.Slow && !slowNoted {
			slowNoted = true
			fmt.Fprintln(os.Stderr, "Results are taking longer than usual.")
		}
	}))

	readiness, err := poller.Run(ctx)
	switch {
	case errors.Is(err, meeting.ErrNotEnded):
		return fmt.Errorf("meeting is still active; run `vocaris end` first")
	case errors.Is(err, meeting.ErrReadinessTimeout):
		fmt.Fprintln(os.Stderr, "Results are still being generated. Run `vocaris wait` again to keep checking.")
		return exitError{code: 2, err: err}
	case err != nil:
		return err
	}

	if asJSON {
		return encodeJSONToStdout(readiness)
	}
	session, err := currentSession(lc)
	if err != nil {
		return err
	}
	fmt.Println("Chat results ready. Run `vocaris chat`.")
	if session.IsScrum && readiness.ScrumReady {
		fmt.Println("Scrum tickets ready. Run `vocaris scrum`.")
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, _, err := a.lifecycle()
	if err != nil {
		return err
	}
	if _, err := currentSession(lc); err != nil {
		return err
	}

	if !watchNoTUI && ui.ANSIEnabled() {
		result, err := livetui.Run(cmd.Context(), livetui.Options{
			Lifecycle: lc,
			Status:    a.statusOptions(),
			Readiness: a.readinessOptions(nil),
			Confirm:   watchConfirm,
		})
		if err != nil {
			return err
		}
		if result.Phase == meeting.PhaseEnded {
			if session, err := lc.Session(); err == nil {
				a.recordMeeting(cmd.Context(), session)
			}
		}
		if result.TimedOut {
			return exitError{code: 2, err: meeting.ErrReadinessTimeout}
		}
		return nil
	}

	if lc.Phase() == meeting.PhaseActive {
		opts := a.statusOptions()
		opts.OnStatus = func(status backend.MeetingStatus) {
			state := "active"
			if !status.IsActive {
				state = "inactive"
			}
			line := fmt.Sprintf("%s  uptime %s", state, ui.FormatUptime(status.UptimeSeconds))
			if status.TranscriptCount != nil {
				line += fmt.Sprintf("  transcripts %d", *status.TranscriptCount)
			}
			fmt.Println(line)
		}
		opts.OnEnded = func(session meeting.Session) {
			fmt.Println("Bot left the call; meeting ended.")
			a.recordMeeting(cmd.Context(), session)
		}
		if err := lc.StatusPoller(opts).Run(cmd.Context()); err != nil {
			return err
		}
	}
	return waitForResults(cmd.Context(), a, lc, false)
}

func readyLabel(ready bool) string {
	if ready {
		return "ready"
	}
	return "pending"
}
