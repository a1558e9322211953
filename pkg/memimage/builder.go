// Package memimage reconstructs instruction memory images for the DUT from
// objdump listings.
//
// A listing is a sequence of address tagged lines, each carrying one or more
// encoded words. The builder keeps the lines inside the kernel address
// region, pads narrow (compressed) encodings to full words, fills address
// gaps left by the disassembler with zero words and finally writes every word
// in target byte order, one per line:
//
//	b := memimage.NewBuilder(memimage.DefaultConfig(), nil)
//	img, err := b.BuildFile(afero.NewOsFs(), "add.txt", "instr/add.txt")
//
// Missing gaps are the one silent failure of this process: a skipped gap
// shifts every following instruction, so gap filling is always applied.
package memimage

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
)

// Config holds the listing filtering parameters
type Config struct {
	// BaseAddress is the first address of the kernel region
	BaseAddress uint64 `mapstructure:"base_address"`

	// RegionSize is the size in bytes of the kernel region. Lines outside
	// [BaseAddress, BaseAddress+RegionSize) are ignored.
	RegionSize uint64 `mapstructure:"region_size"`

	// SectionEnd is the marker line that terminates the listing
	SectionEnd string `mapstructure:"section_end"`
}

// DefaultConfig returns the region used by the riscv-tests and am-kernels linker scripts
func DefaultConfig() Config {
	return Config{
		BaseAddress: 0x80000000,
		RegionSize:  0x00100000,
		SectionEnd:  "Contents of section .comment:",
	}
}

// Entry is one decoded listing line: an address and its encoded word tokens
type Entry struct {
	Address uint64
	Tokens  []string
	Line    int
}

// Image is a reconstructed contiguous instruction memory image
type Image struct {
	Words   []Word
	Fillers int
}

// Hex returns the words of the image in target order, one string per word
func (img *Image) Hex() []string {
	out := make([]string, len(img.Words))
	for i, w := range img.Words {
		out[i] = w.ImageHex()
	}
	return out
}

// Builder converts listings into memory images
type Builder struct {
	config Config
	logger *slog.Logger
}

// NewBuilder creates a builder. A nil logger uses slog.Default()
func NewBuilder(config Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{config: config, logger: logger}
}

// Config returns the builder configuration
func (b *Builder) Config() Config {
	return b.config
}

func (b *Builder) inRegion(address uint64) bool {
	return address >= b.config.BaseAddress && address-b.config.BaseAddress < b.config.RegionSize
}

// ParseListing reads the address tagged lines of a listing until the section end marker
func (b *Builder) ParseListing(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if b.config.SectionEnd != "" && strings.Contains(line, b.config.SectionEnd) {
			break
		}

		entry, ok := parseListingLine(line)
		if !ok || !b.inRegion(entry.Address) {
			continue
		}

		entry.Line = lineNum
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading listing")
	}

	return entries, nil
}

// parseListingLine decodes "<addr>[:] <tok> [<tok>...] <suffix>". Both the
// objdump -d layout (tab separated mnemonic) and the -s full contents layout
// (ascii dump after two spaces) are accepted.
func parseListingLine(line string) (Entry, bool) {
	line = strings.TrimLeft(line, " \t")

	addrEnd := strings.IndexAny(line, " \t")
	if addrEnd < 0 {
		return Entry{}, false
	}

	addrText := strings.TrimSuffix(line[:addrEnd], ":")
	if len(addrText) != 8 || !utils.IsHex(addrText) {
		return Entry{}, false
	}

	address, err := utils.ParseUintHex(addrText)
	if err != nil {
		return Entry{}, false
	}

	body := strings.TrimLeft(line[addrEnd:], " \t")
	if cut := strings.IndexAny(body, "\t"); cut >= 0 {
		body = body[:cut]
	}
	if cut := strings.Index(body, "  "); cut >= 0 {
		body = body[:cut]
	}

	var tokens []string
	for _, field := range strings.Fields(body) {
		if !isEncodingToken(field) {
			break
		}
		tokens = append(tokens, strings.ToLower(field))
		// A narrow encoding is a compressed instruction or the tail of a dump row
		if len(field) < 2*WordSize {
			break
		}
	}

	if len(tokens) == 0 {
		return Entry{}, false
	}

	return Entry{Address: address, Tokens: tokens}, true
}

// isEncodingToken reports whether field is a whole number of encoded bytes,
// at most one word wide. Mnemonics such as "add" fail the width check.
func isEncodingToken(field string) bool {
	return len(field) <= 2*WordSize && len(field)%2 == 0 && utils.IsHex(field)
}

// PadToken right pads a narrow encoding with zeros up to a full word
func PadToken(token string) string {
	return utils.PadRight(token, 2*WordSize, '0')
}

// Build lays out the entries as a contiguous sequence of words, inserting zero
// words wherever an entry does not start right after the previous one.
func (b *Builder) Build(entries []Entry) (*Image, error) {
	img := &Image{}

	var next uint64
	for i, entry := range entries {
		if i > 0 && entry.Address != next {
			if entry.Address < next {
				b.logger.Warn("listing entry overlaps previous entry, no filler inserted",
					"line", entry.Line,
					"address", utils.FormatUintHex(entry.Address, 8),
					"expected", utils.FormatUintHex(next, 8))
			} else {
				gap := entry.Address - next
				if !utils.IsAligned(gap, WordSize) {
					b.logger.Warn("address gap is not word aligned", "line", entry.Line, "gap", gap)
				}

				for addr := next; addr+WordSize <= entry.Address; addr += WordSize {
					img.Words = append(img.Words, Word{Address: addr, Filler: true})
					img.Fillers++
				}
			}
		}

		for j, token := range entry.Tokens {
			w, err := ParseWord(entry.Address+uint64(j*WordSize), PadToken(token))
			if err != nil {
				return nil, utils.MakeError(faults.ErrInputDefect, "line %d: %v", entry.Line, err)
			}
			img.Words = append(img.Words, w)
		}

		next = entry.Address + uint64(len(entry.Tokens)*WordSize)
	}

	return img, nil
}

// WriteImage writes one target order word per line
func WriteImage(w io.Writer, img *Image) error {
	bw := bufio.NewWriter(w)
	for _, word := range img.Words {
		if _, err := bw.WriteString(word.ImageHex() + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// BuildReader parses a listing and builds its image
func (b *Builder) BuildReader(r io.Reader) (*Image, error) {
	entries, err := b.ParseListing(r)
	if err != nil {
		return nil, err
	}

	return b.Build(entries)
}
