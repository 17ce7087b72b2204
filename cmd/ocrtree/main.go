/**
 * ocrtree - command line page recognition
 *
 * Recognizes page images with Tesseract and prints the exported hierarchy
 * as JSON, hOCR or a word table (recognize requires a build with -tags ocr).
 * Also submits jobs to the worker queue and inspects stored jobs.
 */

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
	"github.com/adverant/nexus/ocrtree-worker/internal/tesseract"
)

type recognizeFlags struct {
	format   string
	langs    string
	psm      int
	rotation float64
	skew     float64
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(defaultBackends())
}

func newRootCommandWith(b *backends) *cobra.Command {
	root := &cobra.Command{
		Use:           "ocrtree",
		Short:         "Recognize page images into a block/paragraph/line/word/symbol tree",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newRecognizeCommand(),
		newEnqueueCommand(b),
		newJobCommand(b),
		newStatsCommand(b),
	)
	return root
}

func newRecognizeCommand() *cobra.Command {
	flags := &recognizeFlags{}

	cmd := &cobra.Command{
		Use:   "recognize IMAGE...",
		Short: "Recognize one or more page images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecognize(cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "output format: json, hocr or words")
	cmd.Flags().StringVarP(&flags.langs, "lang", "l", "eng", "Tesseract languages, e.g. eng+deu")
	cmd.Flags().IntVar(&flags.psm, "psm", 3, "Tesseract page segmentation mode (0-13)")
	cmd.Flags().Float64Var(&flags.rotation, "rotation", 0, "page rotation in degrees applied to output geometry")
	cmd.Flags().Float64Var(&flags.skew, "skew", 0, "page skew in degrees applied to output geometry")
	return cmd
}

func runRecognize(cmd *cobra.Command, flags *recognizeFlags, paths []string) error {
	switch flags.format {
	case "json", "hocr", "words":
	default:
		return fmt.Errorf("unknown format %q (want json, hocr or words)", flags.format)
	}

	engine, err := tesseract.NewEngine(tesseract.Options{
		Languages:   strings.Split(flags.langs, "+"),
		PageSegMode: flags.psm,
	})
	if err != nil {
		return err
	}

	pages := make([]*exporter.Page, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		opts := exporter.Options{
			PageNumber: i + 1,
			Rotation:   flags.rotation,
			Skew:       flags.skew,
		}
		if origin, ok := processor.PageOrigin(data); ok {
			opts.Origin = origin
		}

		page, err := recognizeFile(cmd, engine, data, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, page)
	}

	out := cmd.OutOrStdout()
	switch flags.format {
	case "hocr":
		doc, err := exporter.RenderHOCR(pages...)
		if err != nil {
			return err
		}
		_, err = out.Write(doc)
		return err
	case "words":
		return writeWords(out, pages)
	}
	return writeJSON(out, pages)
}

// writeWords prints one row per word: page, box, confidence and text
func writeWords(out io.Writer, pages []*exporter.Page) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE\tWORD\tX0\tY0\tX1\tY1\tCONF\tTEXT")
	for _, page := range pages {
		for _, word := range page.Words() {
			b := word.BBox
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%.2f\t%s\n",
				page.PageNumber, word.Index, b[0], b[1], b[2], b[3], word.Confidence, word.Text)
		}
	}
	return w.Flush()
}

func recognizeFile(cmd *cobra.Command, engine *tesseract.Engine, data []byte, opts exporter.Options) (*exporter.Page, error) {
	result, err := engine.Recognize(cmd.Context(), data)
	if err != nil {
		return nil, err
	}
	defer result.Release()

	return exporter.Export(result, opts), nil
}
