package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/internal/markdown"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
	"github.com/vocaris/vocaris/meeting"
	"gopkg.in/yaml.v3"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Show the summary and transcript of the ended meeting",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var scrumCmd = &cobra.Command{
	Use:   "scrum",
	Short: "Show the scrum tickets generated from the ended meeting",
	Args:  cobra.NoArgs,
	RunE:  runScrum,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>...",
	Short: "Ask a question about a meeting",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	chatJSON       bool
	chatRaw        bool
	chatTranscript bool
	scrumFormat    string
	scrumLong      bool
	askBotID       string
	askTopK        int
	askSources     bool
	askJSON        bool
)

func init() {
	rootCmd.AddCommand(chatCmd, scrumCmd, askCmd)

	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "Output as JSON")
	chatCmd.Flags().BoolVar(&chatRaw, "raw", false, "Print the summary markdown without rendering")
	chatCmd.Flags().BoolVar(&chatTranscript, "transcript", false, "Include the full transcript")

	scrumCmd.Flags().StringVar(&scrumFormat, "format", "table", "Output format: table, json, or yaml")
	scrumCmd.Flags().BoolVar(&scrumLong, "long", false, "Show ticket descriptions under the table")

	askCmd.Flags().StringVar(&askBotID, "bot-id", "", "Meeting bot to ask about (default: current meeting)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Number of transcript passages to consult")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "Include source passages")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Output as JSON")
}

// openResults gates action on the stored readiness flags and fetches its
// results.
func openResults(ctx context.Context, action meeting.Action) (meeting.Route, backend.Results, error) {
	a, err := loadApp()
	if err != nil {
		return meeting.Route{}, backend.Results{}, err
	}
	lc, client, err := a.lifecycle()
	if err != nil {
		return meeting.Route{}, backend.Results{}, err
	}
	session, err := currentSession(lc)
	if err != nil {
		return meeting.Route{}, backend.Results{}, err
	}

	route, err := lc.Dispatch(ctx, action)
	switch {
	case errors.Is(err, meeting.ErrNotReady):
		return route, backend.Results{}, fmt.Errorf("%s results are not ready yet; run `vocaris wait`", action)
	case err != nil:
		return route, backend.Results{}, err
	}

	results, err := client.Transcripts(ctx, backend.TranscriptQuery{
		BotID:     session.BotID,
		SessionID: session.SessionID,
		Mode:      action.Mode(),
	})
	if err != nil {
		return route, backend.Results{}, fmt.Errorf("fetch %s results: %w", action, err)
	}
	return route, results, nil
}

type chatOutput struct {
	BotID      string                   `json:"bot_id"`
	Route      string                   `json:"route"`
	Summary    string                   `json:"summary"`
	Transcript []backend.TranscriptLine `json:"transcript,omitempty"`
}

func runChat(cmd *cobra.Command, args []string) error {
	route, results, err := openResults(cmd.Context(), meeting.ActionChat)
	if err != nil {
		return err
	}
	summary := internalstrings.FirstNonBlank(results.FormattedOutput, results.Summary)

	if chatJSON {
		return encodeJSONToStdout(chatOutput{
			BotID:      route.BotID,
			Route:      route.Path(),
			Summary:    summary,
			Transcript: results.Transcript,
		})
	}

	width := ui.TerminalWidth()
	switch {
	case summary == "":
		fmt.Println("No summary was generated for this meeting.")
	case chatRaw:
		fmt.Println(internalstrings.TrimTrailingNewlines(summary))
	default:
		fmt.Println(markdown.Render(width, ui.ANSIEnabled(), summary))
	}

	if chatTranscript && len(results.Transcript) > 0 {
		fmt.Println()
		fmt.Println("Transcript")
		for _, line := range results.Transcript {
			fmt.Println(formatTranscriptLine(line, width))
		}
	}
	return nil
}

func formatTranscriptLine(line backend.TranscriptLine, width int) string {
	text := internalstrings.NormalizeWhitespace(line.Text)
	speaker := internalstrings.FirstNonBlank(line.Speaker, "Unknown")
	wrapped := wordwrap.String(text, max(width-4, 20))
	return speaker + ":\n" + indent.String(wrapped, 2)
}

func runScrum(cmd *cobra.Command, args []string) error {
	format := internalstrings.NormalizeLowerTrimSpace(scrumFormat)
	switch format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want table, json, or yaml)", scrumFormat)
	}

	_, results, err := openResults(cmd.Context(), meeting.ActionScrum)
	if err != nil {
		return err
	}
	return writeTickets(results.Tickets, format, scrumLong)
}

func writeTickets(tickets []backend.Ticket, format string, long bool) error {
	switch format {
	case "json":
		if tickets == nil {
			tickets = []backend.Ticket{}
		}
		return encodeJSONToStdout(tickets)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(tickets); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(tickets) == 0 {
		fmt.Println("No tickets were generated for this meeting.")
		return nil
	}
	fmt.Print(formatTicketTable(tickets))
	if !long {
		return nil
	}
	width := max(ui.TerminalWidth()-2, 20)
	for i, ticket := range tickets {
		if internalstrings.IsBlank(ticket.Description) {
			continue
		}
		fmt.Printf("\n%d. %s\n", i+1, ticket.Title)
		fmt.Println(indent.String(wordwrap.String(internalstrings.NormalizeWhitespace(ticket.Description), width), 2))
	}
	return nil
}

func formatTicketTable(tickets []backend.Ticket) string {
	builder := ui.NewTableBuilder([]string{"#", "TITLE", "ASSIGNEE", "PRIORITY", "TAGS"}, len(tickets))
	for i, ticket := range tickets {
		builder.AddRow(
			fmt.Sprintf("%d", i+1),
			ticket.Title,
			internalstrings.FirstNonBlank(ticket.Assignee, "-"),
			internalstrings.FirstNonBlank(ticket.Priority, "-"),
			internalstrings.FirstNonBlank(strings.Join(ticket.Tags, ","), "-"),
		)
	}
	return builder.String()
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := internalstrings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	lc, client, err := a.lifecycle()
	if err != nil {
		return err
	}
	botID := internalstrings.TrimSpace(askBotID)
	if botID == "" {
		session, err := currentSession(lc)
		if err != nil {
			return err
		}
		botID = session.BotID
	}

	response, err := client.QueryMeeting(cmd.Context(), backend.QueryRequest{
		BotID:          botID,
		Query:          question,
		TopK:           askTopK,
		IncludeSources: askSources,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if askJSON {
		return encodeJSONToStdout(response)
	}
	fmt.Println(markdown.Render(ui.TerminalWidth(), ui.ANSIEnabled(), response.Answer))
	for i, source := range response.Sources {
		fmt.Printf("[%d] %s\n", i+1, string(source))
	}
	return nil
}
