package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestSelfUpdateCmdShape(t *testing.T) {
	c := newSelfUpdateCmd()

	if c.Use != "self-update" {
		t.Errorf("Use = %q, want self-update", c.Use)
	}
	if c.Short == "" || c.Long == "" {
		t.Error("self-update must carry short and long descriptions")
	}
	if c.RunE == nil {
		t.Error("self-update must have a RunE")
	}
	if githubRepoSlug != "portwatch/portwatch" {
		t.Errorf("githubRepoSlug = %q, want portwatch/portwatch", githubRepoSlug)
	}
}

func TestSelfUpdateRefusesUnreleasedBuilds(t *testing.T) {
	// Neither a dev build nor one without a version can be compared
	// against a release, so both must refuse before touching the network.
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	for _, version := range []string{"dev", ""} {
		rootCmd.Version = version

		err := runSelfUpdate(nil, nil)
		if err == nil {
			t.Errorf("version %q: expected an error", version)
			continue
		}
		if !strings.Contains(err.Error(), "development version") {
			t.Errorf("version %q: unexpected error: %v", version, err)
		}
	}
}

func TestSelfUpdateHelp(t *testing.T) {
	c := newSelfUpdateCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})

	if err := c.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "latest release") {
		t.Errorf("help output missing long description: %q", out)
	}
}

// The download-and-replace path needs network access and would swap out the
// running binary, so it stays untested here.
