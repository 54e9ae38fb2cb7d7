package main

import (
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
	"github.com/vocaris/vocaris/internal/testsupport"
)

func runScripts(t *testing.T, dir string) {
	t.Helper()
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			return testsupport.SetupScriptEnv(t, env)
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"envset":    testsupport.CmdEnvSet,
			"jsonfield": testsupport.CmdJSONField,
		},
	})
}
