package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the respkv commands",
	Long:  `Generate man pages or markdown documentation for every respkv command`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
	RootCmd.AddCommand(MarkdownCmd)
}

// prepareDir normalises dir to end in a separator and creates it if needed.
func prepareDir(dir string) (string, error) {
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}

	if _, err := os.Stat(dir); err != nil && os.IsNotExist(err) {
		fmt.Println("Directory", dir, "does not exist, creating...")
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func dirFlag(cmd *cobra.Command, dir *string, def string) {
	flags := cmd.PersistentFlags()

	flags.StringVar(dir, "dir", def, "the directory to write the documentation to.")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
