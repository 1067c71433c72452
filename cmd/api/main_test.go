package main

import (
	"strings"
	"testing"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "ping", "notes"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected %s command, got %v", name, err)
		}
	}
}

func TestNotesRejectsInvalidOrderID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"notes", "abc", "--env-file", t.TempDir() + "/missing.env"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid order id") {
		t.Fatalf("expected invalid order id error, got %v", err)
	}
}
