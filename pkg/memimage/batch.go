package memimage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
	"go.uber.org/multierr"
)

// ListingExt is the extension of the listing files picked up by BuildTree
const ListingExt = ".txt"

// BuildFile builds the image of a single listing file and writes it to outputPath.
// A missing input is reported as faults.ErrInputDefect and nothing is written.
func (b *Builder) BuildFile(fs afero.Fs, inputPath, outputPath string) (*Image, error) {
	in, err := fs.Open(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.MakeError(faults.ErrInputDefect, "file not found: %s", inputPath)
		}
		return nil, utils.MakeError(faults.ErrInputDefect, "cannot open %s: %v", inputPath, err)
	}
	defer in.Close()

	img, err := b.BuildReader(in)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", inputPath)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "error creating output directory %s", dir)
		}
	}

	out, err := fs.Create(outputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error writing to file %s", outputPath)
	}

	if err := WriteImage(out, img); err != nil {
		out.Close()
		return nil, errors.Wrapf(err, "error writing to file %s", outputPath)
	}

	if err := out.Close(); err != nil {
		return nil, errors.Wrapf(err, "error writing to file %s", outputPath)
	}

	b.logger.Debug("memory image written",
		"input", inputPath,
		"output", outputPath,
		"words", len(img.Words),
		"fillers", img.Fillers)

	return img, nil
}

// OutputDirFor maps a listing directory to its image directory by replacing
// the "dis-asm" path element with "instr". Directories without that element
// get an "instr" sibling.
func OutputDirFor(inputDir string) string {
	parts := strings.Split(filepath.ToSlash(inputDir), "/")
	for i, p := range parts {
		if p == "dis-asm" {
			parts[i] = "instr"
			return filepath.FromSlash(strings.Join(parts, "/"))
		}
	}

	return filepath.Join(filepath.Dir(inputDir), "instr")
}

// BuildTree builds an image for every listing file of inputDir into outputDir,
// keeping the file names. A failing listing does not stop its siblings; all
// failures are returned combined. The returned paths are the images written.
func (b *Builder) BuildTree(fs afero.Fs, inputDir, outputDir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, inputDir)
	if err != nil {
		return nil, utils.MakeError(faults.ErrInputDefect, "cannot read listing directory %s: %v", inputDir, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var written []string
	var errs error

	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != ListingExt {
			continue
		}

		in := filepath.Join(inputDir, info.Name())
		out := filepath.Join(outputDir, info.Name())

		if _, err := b.BuildFile(fs, in, out); err != nil {
			b.logger.Error("memory image skipped", "input", in, "error", err.Error())
			errs = multierr.Append(errs, err)
			continue
		}

		written = append(written, out)
	}

	return written, errs
}
