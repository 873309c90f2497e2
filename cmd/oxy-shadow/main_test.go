package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCourtyard(t *testing.T) {
	out, err := execute(t, "run", "--scene", "../../configs/courtyard.yaml", "--frames", "3")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"courtyard", "Fills", "total"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestRunNeedsScene(t *testing.T) {
	if _, err := execute(t, "run"); err == nil {
		t.Error("run without --scene succeeded")
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats", "--capabilities", "minimal")
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	if !strings.Contains(out, "D24_UNorm_S8_UInt") {
		t.Errorf("output is missing the minimal depth format:\n%s", out)
	}
	if _, err := execute(t, "formats", "--capabilities", "console"); err == nil {
		t.Error("formats accepted an unknown profile")
	}
}

func TestSettingsCommand(t *testing.T) {
	out, err := execute(t, "settings", "--settings", "../../configs/shadow.properties")
	if err != nil {
		t.Fatalf("settings: %v\n%s", err, out)
	}
	for _, want := range []string{"PCF_Medium *", "PCSS_Soft", "RSM_Bounce"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}
