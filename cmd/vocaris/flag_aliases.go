package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var meetingURLFlagAliases = map[string]string{
	"url": "meeting-url",
}

var listFlagAliases = map[string]string{
	"list": "list-id",
}

func addMeetingURLFlagAliases(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		setFlagAliases(cmd.Flags(), meetingURLFlagAliases)
	}
}

func addListFlagAliases(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		setFlagAliases(cmd.Flags(), listFlagAliases)
	}
}

func setFlagAliases(flags *pflag.FlagSet, aliases map[string]string) {
	if len(aliases) == 0 {
		return
	}

	normalize := flags.GetNormalizeFunc()
	flags.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		return normalize(f, name)
	})
}
