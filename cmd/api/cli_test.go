package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func TestCLIDefaults(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{}); err != nil {
		t.Fatal(err)
	}

	if cli.EnvFile != ".env" {
		t.Errorf("expected env file '.env', got %q", cli.EnvFile)
	}
	if len(cli.overrides()) != 0 {
		t.Errorf("expected no overrides, got %v", cli.overrides())
	}
}

func TestCLIAddrOverride(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"--addr", "9090", "--config", "memchat.yaml"}); err != nil {
		t.Fatal(err)
	}

	if got := cli.overrides()["server.addr"]; got != "9090" {
		t.Errorf("expected addr override 9090, got %v", got)
	}
	if cli.Config == "" {
		t.Error("expected config path to be set")
	}
}
