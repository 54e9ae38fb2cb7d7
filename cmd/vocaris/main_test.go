package main

import "testing"

func TestRootCommandName(t *testing.T) {
	if rootCmd.Use != "vocaris" {
		t.Fatalf("expected root command name vocaris, got %q", rootCmd.Use)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	for _, name := range []string{"start", "status", "end", "wait", "watch", "chat", "scrum", "ask", "history", "clickup", "serve", "doctor", "session", "auth", "theme"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Fatalf("expected %s command to be registered", name)
		}
	}
}
