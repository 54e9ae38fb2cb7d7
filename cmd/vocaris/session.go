package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocaris/vocaris/internal/state"
	internalstrings "github.com/vocaris/vocaris/internal/strings"
	"github.com/vocaris/vocaris/internal/ui"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the stored meeting session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored session without contacting the backend",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runSessionClear,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the backend credentials",
}

var authTokenCmd = &cobra.Command{
	Use:   "token <token>",
	Short: "Store the bearer token sent to the backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthToken,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored backend token",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var themeCmd = &cobra.Command{
	Use:   "theme [system|light|dark]",
	Short: "Show or set the display theme",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTheme,
}

var (
	sessionShowJSON bool
	authTokenUser   string
)

func init() {
	rootCmd.AddCommand(sessionCmd, authCmd, themeCmd)
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
	authCmd.AddCommand(authTokenCmd, authLogoutCmd)

	sessionShowCmd.Flags().BoolVar(&sessionShowJSON, "json", false, "Output as JSON")
	authTokenCmd.Flags().StringVar(&authTokenUser, "user", "", "Label for the signed-in user")
}

type sessionOutput struct {
	Session   *state.Session  `json:"session,omitempty"`
	Readiness state.Readiness `json:"readiness"`
	User      string          `json:"user,omitempty"`
	SignedIn  bool            `json:"signed_in"`
	ClickUp   bool            `json:"clickup_connected"`
	Theme     state.Theme     `json:"theme,omitempty"`
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	st, err := a.store.Load()
	if err != nil {
		return err
	}

	output := sessionOutput{
		Session:   st.Session,
		Readiness: st.Readiness,
		User:      st.User,
		SignedIn:  st.Token != "",
		ClickUp:   st.ClickUpToken != "",
		Theme:     st.Theme,
	}
	if sessionShowJSON {
		return encodeJSONToStdout(output)
	}

	if st.Session == nil {
		fmt.Println("No meeting session stored.")
	} else {
		session := *st.Session
		printField("Bot", session.BotID)
		printField("Session", session.SessionID)
		printField("Meeting", session.MeetingURL)
		printField("Mode", sessionMode(session))
		printField("Started", session.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if session.Ended() {
			printField("Ended", session.EndedAt.Local().Format("2006-01-02 15:04:05"))
			printField("Chat", readyLabel(st.Readiness.BotID == session.BotID && st.Readiness.ChatReady))
			if session.IsScrum {
				printField("Scrum", readyLabel(st.Readiness.BotID == session.BotID && st.Readiness.ScrumReady))
			}
		}
	}
	signedIn := "no"
	if output.SignedIn {
		signedIn = internalstrings.FirstNonBlank(st.User, "yes")
	}
	printField("Signed in", signedIn)
	printField("ClickUp", yesNo(output.ClickUp))
	if !st.UpdatedAt.IsZero() {
		printField("Updated", ui.FormatTimeAgo(st.UpdatedAt, time.Now()))
	}
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.store.ClearSession(); err != nil {
		return err
	}
	fmt.Println("Session cleared.")
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	token := internalstrings.TrimSpace(args[0])
	if token == "" {
		return fmt.Errorf("token is required")
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.store.SetToken(token, authTokenUser); err != nil {
		return err
	}
	fmt.Println("Backend token stored.")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.store.SetToken("", ""); err != nil {
		return err
	}
	fmt.Println("Backend token removed.")
	return nil
}

func runTheme(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		st, err := a.store.Load()
		if err != nil {
			return err
		}
		theme := st.Theme
		if theme == "" {
			theme = state.ThemeSystem
		}
		fmt.Println(theme)
		return nil
	}

	theme := state.Theme(internalstrings.NormalizeLowerTrimSpace(args[0]))
	if !theme.IsValid() {
		valid := make([]string, 0, len(state.ValidThemes()))
		for _, t := range state.ValidThemes() {
			valid = append(valid, string(t))
		}
		return fmt.Errorf("invalid theme %q (want %s)", args[0], strings.Join(valid, ", "))
	}
	if err := a.store.SetTheme(theme); err != nil {
		return err
	}
	fmt.Printf("Theme set to %s.\n", theme)
	return nil
}
