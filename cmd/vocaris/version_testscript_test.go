package main

import "testing"

func TestVersionScripts(t *testing.T) {
	runScripts(t, "testdata/version")
}
