package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"iter"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/meigma/unitypackage"
	"github.com/meigma/unitypackage/importer"
)

// parseFlags parses args with fs, accepting flags before or after
// positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	fs.SetOutput(io.Discard)
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func assetSize(rec *unitypackage.Record) string {
	size, _ := rec.Size(unitypackage.FieldAsset)
	return humanize.IBytes(uint64(max(size, 0)))
}

func runList(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	exts := fs.String("ext", "", "comma-separated extensions to list, such as .png,.fbx")
	kind := fs.String("kind", "all", "texture, model or all")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}

	var recs iter.Seq[*unitypackage.Record]
	switch {
	case *exts != "":
		recs = e.idx.ByExtensions(splitList(*exts)...)
	case *kind == "all":
		recs = e.idx.Records()
	default:
		k, ok := importer.ParseKind(*kind)
		if !ok {
			return fmt.Errorf("%w: unknown kind %q", errUsage, *kind)
		}
		recs = e.idx.ByExtensions(e.im.Extensions(k)...)
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for rec := range recs {
		p, err := rec.Pathname()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.GUID(), assetSize(rec), p)
	}
	return tw.Flush()
}

func runTree(_ context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	items, err := e.im.Prepare()
	if err != nil {
		return err
	}
	for _, it := range items {
		indent := strings.Repeat("  ", it.Depth)
		if it.IsDir() {
			fmt.Fprintf(e.stdout, "%s%s/\n", indent, it.Name)
			continue
		}
		fmt.Fprintf(e.stdout, "%s%s  [%s %s]\n", indent, it.Name, it.Kind, it.GUID)
	}
	return nil
}

func runShow(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	rec, err := e.idx.ByGUID(args[0])
	if err != nil {
		return err
	}

	fields := []unitypackage.Field{
		unitypackage.FieldPathname,
		unitypackage.FieldAsset,
		unitypackage.FieldAssetMeta,
	}
	states := make([]unitypackage.State, len(fields))
	for i, f := range fields {
		states[i] = rec.State(f)
	}

	p, err := rec.Pathname()
	if err != nil {
		return err
	}
	ext, err := rec.Extension()
	if err != nil {
		return err
	}
	dgst, err := rec.Digest()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "guid\t%s\n", rec.GUID())
	fmt.Fprintf(tw, "pathname\t%s\n", p)
	fmt.Fprintf(tw, "kind\t%s\n", e.im.KindOf(ext))
	fmt.Fprintf(tw, "digest\t%s\n", dgst)
	for i, f := range fields {
		size, ok := rec.Size(f)
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t-\n", f, states[i])
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f, states[i], humanize.IBytes(uint64(max(size, 0))))
	}
	return tw.Flush()
}

func runCat(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	meta := fs.Bool("meta", false, "print asset.meta instead of the asset")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errUsage
	}
	rec, err := e.idx.ByGUID(rest[0])
	if err != nil {
		return err
	}

	field := unitypackage.FieldAsset
	if *meta {
		field = unitypackage.FieldAssetMeta
	}
	data, err := rec.Value(field)
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(data)
	return err
}

func runExtract(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	dest := fs.String("dest", "", "destination directory")
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	meta := fs.Bool("meta", false, "write asset.meta sidecars")
	guids, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if *dest == "" {
		return fmt.Errorf("%w: -dest is required", errUsage)
	}

	if len(guids) == 0 {
		for rec := range e.im.Importable() {
			guids = append(guids, rec.GUID())
		}
		if len(guids) == 0 {
			fmt.Fprintln(e.stdout, "no importable assets")
			return nil
		}
	}

	res, err := e.im.ExtractTo(ctx, *dest, guids,
		importer.ExtractWithOverwrite(*overwrite),
		importer.ExtractWithMeta(*meta))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, f := range res.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Digest.Encoded()[:12], humanize.IBytes(uint64(max(f.Size, 0))), f.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "extracted %d files (%s), skipped %d\n",
		res.Stats.FileCount, humanize.IBytes(res.Stats.TotalBytes), res.Stats.Skipped)
	return nil
}
