package main

import "testing"

func TestSessionScripts(t *testing.T) {
	runScripts(t, "testdata/session")
}
