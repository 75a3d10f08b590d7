package cli

import "testing"

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	want := []string{"serve", "tui", "scan", "token", "status", "version"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	flag := root.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("missing --config flag")
	}
	if flag.DefValue != "config.yaml" {
		t.Errorf("--config default = %q, want config.yaml", flag.DefValue)
	}
}
