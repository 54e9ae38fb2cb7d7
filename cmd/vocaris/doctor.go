package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials, and backend reachability",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

const doctorTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		doctorCheck("Config", false, err.Error())
		return exitError{code: 1, err: err}
	}
	ok := true
	check := func(name string, passed bool, detail string) {
		doctorCheck(name, passed, detail)
		ok = ok && passed
	}

	check("Config", true, "loaded")
	check("Backend URL", true, a.cfg.Backend.BaseURL)

	if err := checkWritable(a.stateDir); err != nil {
		check("State directory", false, err.Error())
	} else {
		check("State directory", true, a.stateDir)
	}

	st, err := a.store.Load()
	if err != nil {
		check("State file", false, err.Error())
		return exitError{code: 1, err: err}
	}
	if st.Token != "" {
		check("Backend token", true, "stored")
	} else {
		check("Backend token", false, "not set. Run `vocaris auth token <token>`")
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	_, err = client.History(ctx, 1, 0)
	cancel()
	if err != nil {
		check("Backend", false, err.Error())
	} else {
		check("Backend", true, "reachable")
	}

	if a.cfg.ClickUp.ClientID != "" && a.cfg.ClickUp.ClientSecret != "" {
		check("ClickUp app", true, "client credentials configured")
	} else {
		doctorCheck("ClickUp app", true, "no client credentials; codes are exchanged through the backend")
	}
	if st.ClickUpToken != "" {
		check("ClickUp token", true, "stored")
	} else {
		doctorCheck("ClickUp token", true, "not connected. Run `vocaris clickup auth <code>` to push tickets")
	}

	if missing := a.cfg.Auth.Missing(); len(missing) == 0 {
		doctorCheck("Sign-in", true, "Google and NextAuth credentials configured")
	} else {
		doctorCheck("Sign-in", true, "not configured ("+strings.Join(missing, ", ")+"); only needed to host the web sign-in")
	}

	if ok {
		fmt.Println("\nAll checks passed.")
		return nil
	}
	fmt.Println("\nSome checks failed.")
	return exitError{code: 1, err: fmt.Errorf("doctor found problems")}
}

func doctorCheck(name string, passed bool, detail string) {
	mark := "✓"
	if !passed {
		mark = "✗"
	}
	fmt.Printf("%s %-16s %s\n", mark, name, detail)
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
