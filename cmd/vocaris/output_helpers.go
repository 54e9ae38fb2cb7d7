package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func encodeJSONToStdout(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printField(label, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Printf("%-13s %s\n", label+":", value)
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
