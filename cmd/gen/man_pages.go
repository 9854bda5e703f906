package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/respkv/internal/meta"
)

var (
	manDir      string
	markdownDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for respkv",
	Long: `This command automatically generates up-to-date man pages of the
	respkv server and cli.  By default, it creates the man page files
	in the "man" directory under the current directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "respkv Manual",
			Source:  fmt.Sprintf("respkv %s", meta.GetInfo().Version),
		}

		dir, err := prepareDir(manDir)
		if err != nil {
			return err
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Println("Generating respkv man pages in", dir, "...")

		if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
			return err
		}

		fmt.Println("Done.")

		return nil
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate markdown documentation for respkv",

	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := prepareDir(markdownDir)
		if err != nil {
			return err
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Println("Generating respkv markdown docs in", dir, "...")

		if err := doc.GenMarkdownTree(cmd.Root(), dir); err != nil {
			return err
		}

		fmt.Println("Done.")

		return nil
	},
}

func init() {
	dirFlag(ManPagesCmd, &manDir, "man/")
	dirFlag(MarkdownCmd, &markdownDir, "docs/")
}
