package mem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/texerai/maveric2/cmd/common"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/memimage"
	"go.uber.org/multierr"
)

var outputDir string

// MemCmd represents the mem command
var MemCmd = &cobra.Command{
	Use:   "mem",
	Short: "Instruction memory image tools",
}

var buildCmd = &cobra.Command{
	Use:   "build listing...",
	Short: "Build instruction memory images from disassembly listings",
	Long: `Converts objdump disassembly listings into the instruction memory images loaded
by the core under test: one 32-bit word per line in target byte order, with
zero words filling the address gaps of the listing.

Each argument is a listing file or a directory of .txt listings. Images are
written to --output-dir, or next to the listings replacing the "dis-asm"
directory with "instr". A missing or broken listing is reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := common.Config()
		logger := common.Logger()

		builder := memimage.NewBuilder(cfg.MemImage, logger)
		fs := afero.NewOsFs()

		var errs error
		for _, arg := range args {
			info, err := fs.Stat(arg)
			if err != nil {
				errs = multierr.Append(errs, faults.ErrInputDefect)
				fmt.Fprintf(os.Stderr, "Error: listing not found: %s\n", arg)
				continue
			}

			if info.IsDir() {
				out := outputDir
				if out == "" {
					out = memimage.OutputDirFor(arg)
				}

				written, err := builder.BuildTree(fs, arg, out)
				for _, path := range written {
					fmt.Println(path)
				}
				if err != nil {
					errs = multierr.Append(errs, err)
				}
				continue
			}

			out := outputDir
			if out == "" {
				out = memimage.OutputDirFor(filepath.Dir(arg))
			}
			out = filepath.Join(out, filepath.Base(arg))

			if _, err := builder.BuildFile(fs, arg, out); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			fmt.Println(out)
		}

		if errs != nil {
			common.Exit("Error building memory images", errs)
		}
	},
}

func init() {
	MemCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory. If omitted, images go to the matching \"instr\" directory")
}
