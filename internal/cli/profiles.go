package cli

import (
	"fmt"

	"docqa/config"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	active := ""
	if cfg := GetConfig(); cfg != nil {
		active = cfg.Profile
	}

	for _, name := range config.ProfileNames() {
		p, err := config.Profile(name)
		if err != nil {
			return err
		}
		mark := " "
		if name == active {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %-20s corpus=%s store=%s embed=%s llm=%s\n",
			mark, name, p.Corpus.Dir, p.Store.Backend, p.Embedding.Model, p.LLM.Model)
	}
	return nil
}
