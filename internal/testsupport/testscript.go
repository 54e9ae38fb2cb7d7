package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

var (
	buildOnce   sync.Once
	vocarisPath string
	buildErr    error
)

// BuildVocaris builds the vocaris binary once and returns its path.
func BuildVocaris(t testing.TB) string {
	t.Helper()

	buildOnce.Do(func() {
		moduleRoot, err := findModuleRoot()
		if err != nil {
			buildErr = err
			return
		}

		binDir, err := os.MkdirTemp("", "vocaris-bin-")
		if err != nil {
			buildErr = err
			return
		}

		vocarisPath = filepath.Join(binDir, "vocaris")
		cmd := exec.Command("go", "build", "-o", vocarisPath, "./cmd/vocaris")
		cmd.Dir = moduleRoot
		output, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build vocaris: %w: %s", err, strings.TrimSpace(string(output)))
		}
	})

	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}

	return vocarisPath
}

// SetupScriptEnv configures common environment variables for testscript.
// Each script gets its own home directory and its own fake backend, whose
// URL is exported as VOCARIS_BACKEND_URL.
func SetupScriptEnv(t testing.TB, env *testscript.Env) error {
	t.Helper()

	env.Setenv("VOCARIS", BuildVocaris(t))

	homeDir := filepath.Join(env.WorkDir, "home")
	if err := EnsureHomeDirs(homeDir); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)
	env.Setenv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	env.Setenv("VOCARIS_STATE_DIR", filepath.Join(homeDir, ".local", "state", "vocaris"))
	env.Setenv("NO_COLOR", "1")

	server := httptest.NewServer(NewFakeBackend().Handler())
	env.Defer(server.Close)
	env.Setenv("VOCARIS_BACKEND_URL", server.URL)
	return nil
}

// CmdEnvSet stores the trimmed contents of a file in an env var.
func CmdEnvSet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("envset does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: envset VAR FILE")
	}

	value := strings.TrimSpace(ts.ReadFile(args[1]))
	ts.Setenv(args[0], value)
}

// CmdJSONField reads a top-level string field from a JSON object file and
// stores it in an env var.
func CmdJSONField(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("jsonfield does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: jsonfield FILE FIELD VAR")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(ts.ReadFile(args[0])), &fields); err != nil {
		ts.Fatalf("parse %s: %v", args[0], err)
	}
	value, ok := fields[args[1]]
	if !ok {
		ts.Fatalf("field %q not found in %s", args[1], args[0])
	}
	ts.Setenv(args[2], fmt.Sprint(value))
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find module root (go.mod)")
		}
		dir = parent
	}
}
