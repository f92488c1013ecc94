package cli

import "testing"

func TestNewRootCmdRegistersFlags(t *testing.T) {
	cmd := newRootCmd("test")
	for _, name := range []string{"jobs", "force", "watch", "config", "eject", "format", "list", "clear-cache"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("expected --%s flag to be registered", name)
		}
	}
}

func TestExitErrorCarriesCode(t *testing.T) {
	err := &exitError{code: 3}
	if err.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
