package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/clickup"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
	"github.com/vocaris/vocaris/meeting"
	"gopkg.in/yaml.v3"
)

var clickupCmd = &cobra.Command{
	Use:   "clickup",
	Short: "Connect ClickUp and push scrum tickets as tasks",
}

var clickupAuthCmd = &cobra.Command{
	Use:   "auth <code>",
	Short: "Exchange an OAuth code for a ClickUp token and store it",
	Args:  cobra.ExactArgs(1),
	RunE:  runClickUpAuth,
}

var clickupLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored ClickUp token",
	Args:  cobra.NoArgs,
	RunE:  runClickUpLogout,
}

var clickupWorkspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "List the ClickUp lists and members visible to the token",
	Args:  cobra.NoArgs,
	RunE:  runClickUpWorkspace,
}

var clickupPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Create one ClickUp task per scrum ticket",
	Long: `Create one ClickUp task per scrum ticket.

Tickets come from the ended meeting's scrum results, or from --file, a YAML
or JSON list of tickets. Tasks are created one at a time; a failed ticket is
reported and the rest are still pushed. Pushing the same tickets twice
creates duplicate tasks.`,
	Args: cobra.NoArgs,
	RunE: runClickUpPush,
}

var clickupAttemptsCmd = &cobra.Command{
	Use:   "attempts <batch-id>",
	Short: "Show the recorded attempts of one push batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runClickUpAttempts,
}

var (
	clickupToken    string
	clickupJSON     bool
	clickupListID   string
	clickupAssignee string
	clickupFile     string
	clickupDueDays  int
	clickupPushJSON bool
	clickupAttJSON  bool
)

func init() {
	rootCmd.AddCommand(clickupCmd)
	clickupCmd.AddCommand(clickupAuthCmd, clickupLogoutCmd, clickupWorkspaceCmd, clickupPushCmd, clickupAttemptsCmd)

	clickupCmd.PersistentFlags().StringVar(&clickupToken, "token", "", "ClickUp access token (default: stored token)")
	clickupWorkspaceCmd.Flags().BoolVar(&clickupJSON, "json", false, "Output as JSON")

	clickupPushCmd.Flags().StringVar(&clickupListID, "list-id", "", "Target list id or name (default from config)")
	clickupPushCmd.Flags().StringVar(&clickupAssignee, "assignee", "", "Assign every task to this member (id, username, or email)")
	clickupPushCmd.Flags().StringVar(&clickupFile, "file", "", "Read tickets from a YAML or JSON file")
	clickupPushCmd.Flags().IntVar(&clickupDueDays, "due-days", 0, "Days until the tasks are due (default from config)")
	clickupPushCmd.Flags().BoolVar(&clickupPushJSON, "json", false, "Output as JSON")
	addListFlagAliases(clickupPushCmd)

	clickupAttemptsCmd.Flags().BoolVar(&clickupAttJSON, "json", false, "Output as JSON")
}

func runClickUpAuth(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	authorizer := clickup.NewAuthorizer(clickup.AuthorizerOptions{
		TokenURL:     a.cfg.ClickUp.TokenURL,
		ClientID:     a.cfg.ClickUp.ClientID,
		ClientSecret: a.cfg.ClickUp.ClientSecret,
		Backend:      client,
	})

	token, err := authorizer.Exchange(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := a.store.SetClickUpToken(token.AccessToken); err != nil {
		return err
	}
	fmt.Printf("ClickUp connected (token from %s).\n", token.Source)
	return nil
}

func runClickUpLogout(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.store.SetClickUpToken(""); err != nil {
		return err
	}
	fmt.Println("ClickUp token removed.")
	return nil
}

func (a *app) clickUpToken() (string, error) {
	if token := internalstrings.TrimSpace(clickupToken); token != "" {
		return token, nil
	}
	st, err := a.store.Load()
	if err != nil {
		return "", err
	}
	if st.ClickUpToken == "" {
		return "", fmt.Errorf("not connected to ClickUp; run `vocaris clickup auth <code>` or pass --token")
	}
	return st.ClickUpToken, nil
}

func runClickUpWorkspace(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	token, err := a.clickUpToken()
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	workspace, err := client.ClickUpWorkspace(cmd.Context(), token)
	if err != nil {
		return fmt.Errorf("clickup workspace: %w", err)
	}
	if clickupJSON {
		return encodeJSONToStdout(workspace)
	}

	refs := clickup.Lists(workspace)
	if len(refs) == 0 {
		fmt.Println("No lists found.")
	} else {
		builder := ui.NewTableBuilder([]string{"LIST", "PATH"}, len(refs))
		for _, ref := range refs {
			builder.AddRow(ref.List.ID, ref.Path())
		}
		fmt.Print(builder.String())
	}
	for _, team := range workspace.Teams {
		if len(team.Members) == 0 {
			continue
		}
		fmt.Printf("\nMembers of %s\n", team.Name)
		builder := ui.NewTableBuilder([]string{"ID", "USERNAME", "EMAIL"}, len(team.Members))
		for _, member := range team.Members {
			builder.AddRow(strconv.FormatInt(member.User.ID, 10), member.User.Username, internalstrings.FirstNonBlank(member.User.Email, "-"))
		}
		fmt.Print(builder.String())
	}
	return nil
}

type pushOutput struct {
	BatchID  string            `json:"batch_id"`
	ListID   string            `json:"list_id"`
	Success  int               `json:"success"`
	Total    int               `json:"total"`
	Summary  string            `json:"summary"`
	Outcomes []pushOutcomeJSON `json:"outcomes"`
}

type pushOutcomeJSON struct {
	Title  string `json:"title"`
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runClickUpPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	token, err := a.clickUpToken()
	if err != nil {
		return err
	}
	listQuery := internalstrings.FirstNonBlank(clickupListID, a.cfg.ClickUp.DefaultList)
	if listQuery == "" {
		return fmt.Errorf("a target list is required; pass --list or set clickup.default-list")
	}

	botID, tickets, err := pushTickets(ctx)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Println("No tickets to push.")
		return nil
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	workspace, err := client.ClickUpWorkspace(ctx, token)
	if err != nil {
		return fmt.Errorf("clickup workspace: %w", err)
	}
	ref, err := resolveList(workspace, listQuery)
	if err != nil {
		return err
	}
	var assignee backend.ClickUpUser
	if !internalstrings.IsBlank(clickupAssignee) {
		assignee, err = resolveMember(workspace, ref, clickupAssignee)
		if err != nil {
			return err
		}
	}
	dueDays := clickupDueDays
	if dueDays <= 0 {
		dueDays = a.cfg.ClickUp.DueDays
	}
	request := clickup.Select(token, ref, assignee).Request(botID, dueDays, tickets)

	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	pushed, err := l.PushedTitles(ctx, request.ListID)
	if err != nil {
		return err
	}
	repeats := 0
	for _, ticket := range tickets {
		if pushed[ticket.Title] {
			repeats++
		}
	}
	if repeats > 0 {
		warnf("%d of %d tickets were already pushed to list %s; pushing again creates duplicates", repeats, len(tickets), request.ListID)
	}

	pusher := clickup.NewPusher(clickup.PusherOptions{Creator: client, Recorder: l, Logger: a.logger()})
	result, err := pusher.Push(ctx, request)
	target := request.ListID
	if ref.Team.ID != "" {
		target = ref.Path()
	}
	if err != nil {
		if len(result.Outcomes) == 0 {
			return err
		}
		reportPush(os.Stderr, result, target)
		return fmt.Errorf("push stopped after %d of %d tickets: %w", len(result.Outcomes), result.Total, err)
	}

	if clickupPushJSON {
		output := pushOutput{
			BatchID:  result.BatchID,
			ListID:   request.ListID,
			Success:  result.Success,
			Total:    result.Total,
			Summary:  result.Summary(),
			Outcomes: make([]pushOutcomeJSON, 0, len(result.Outcomes)),
		}
		for _, outcome := range result.Outcomes {
			item := pushOutcomeJSON{Title: outcome.Ticket.Title, TaskID: outcome.TaskID}
			if outcome.Err != nil {
				item.Error = outcome.Err.Error()
			}
			output.Outcomes = append(output.Outcomes, item)
		}
		return encodeJSONToStdout(output)
	}

	reportPush(os.Stdout, result, target)
	return nil
}

// reportPush writes one line per attempted ticket and the batch summary.
func reportPush(w io.Writer, result clickup.PushResult, target string) {
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", outcome.Ticket.Title, outcome.Err)
			continue
		}
		fmt.Fprintf(w, "pushed  %s (%s)\n", outcome.Ticket.Title, internalstrings.FirstNonBlank(outcome.TaskID, "no id"))
	}
	fmt.Fprintf(w, "%s to %s (batch %s)\n", result.Summary(), target, result.BatchID)
}

func runClickUpAttempts(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	l, err := a.openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer l.Close()

	batchID := internalstrings.TrimSpace(args[0])
	attempts, err := l.Pushes(cmd.Context(), batchID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return fmt.Errorf("no push attempts recorded for batch %s", batchID)
	}
	if clickupAttJSON {
		return encodeJSONToStdout(attempts)
	}
	fmt.Print(formatAttemptsTable(attempts))
	return nil
}

func formatAttemptsTable(attempts []clickup.Attempt) string {
	builder := ui.NewTableBuilder([]string{"TITLE", "LIST", "RESULT", "AT"}, len(attempts))
	for _, attempt := range attempts {
		outcome := "task " + internalstrings.FirstNonBlank(attempt.TaskID, "(no id)")
		if attempt.Error != "" {
			outcome = "failed: " + attempt.Error
		}
		builder.AddRow(attempt.Title, attempt.ListID, outcome, attempt.At.Local().Format(time.DateTime))
	}
	return builder.String()
}

// pushTickets loads tickets from --file, or else from the current meeting's
// scrum results.
func pushTickets(ctx context.Context) (string, []backend.Ticket, error) {
	if clickupFile != "" {
		tickets, err := readTicketFile(clickupFile)
		return "", tickets, err
	}
	route, results, err := openResults(ctx, meeting.ActionScrum)
	if err != nil {
		return "", nil, err
	}
	return route.BotID, results.Tickets, nil
}

// readTicketFile accepts a list of tickets or a {tickets: [...]} object.
// JSON input is decoded by Ticket.UnmarshalJSON so the backend's field
// aliases apply.
func readTicketFile(path string) ([]backend.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tickets: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') && json.Valid(trimmed) {
		return readTicketJSON(path, trimmed)
	}
	var tickets []backend.Ticket
	if err := yaml.Unmarshal(data, &tickets); err == nil {
		return validTickets(tickets), nil
	}
	var wrapped struct {
		Tickets []backend.Ticket `yaml:"tickets"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse tickets %s: %w", path, err)
	}
	return validTickets(wrapped.Tickets), nil
}

func readTicketJSON(path string, data []byte) ([]backend.Ticket, error) {
	var tickets []backend.Ticket
	if data[0] == '[' {
		if err := json.Unmarshal(data, &tickets); err != nil {
			return nil, fmt.Errorf("parse tickets %s: %w", path, err)
		}
		return validTickets(tickets), nil
	}
	var wrapped struct {
		Tickets []backend.Ticket `json:"tickets"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse tickets %s: %w", path, err)
	}
	return validTickets(wrapped.Tickets), nil
}

func validTickets(tickets []backend.Ticket) []backend.Ticket {
	valid := tickets[:0]
	for _, ticket := range tickets {
		if internalstrings.IsBlank(ticket.Title) {
			warnf("skipping ticket without a title")
			continue
		}
		valid = append(valid, ticket)
	}
	return valid
}

// resolveList finds query in the workspace. A numeric query the workspace
// does not list is used as a raw list id.
func resolveList(workspace backend.ClickUpWorkspace, query string) (clickup.ListRef, error) {
	ref, err := clickup.FindList(workspace, query)
	if errors.Is(err, clickup.ErrListNotFound) {
		if _, parseErr := strconv.ParseInt(query, 10, 64); parseErr == nil {
			return clickup.ListRef{List: backend.ClickUpList{ID: query}}, nil
		}
	}
	return ref, err
}

func resolveMember(workspace backend.ClickUpWorkspace, ref clickup.ListRef, query string) (backend.ClickUpUser, error) {
	if ref.Team.ID != "" {
		return clickup.FindMember(ref.Team, query)
	}
	for _, team := range workspace.Teams {
		if user, err := clickup.FindMember(team, query); err == nil {
			return user, nil
		}
	}
	return backend.ClickUpUser{}, fmt.Errorf("%w: %s", clickup.ErrMemberNotFound, query)
}
