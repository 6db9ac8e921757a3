package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-dm4/dm"
	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

func fileArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one file argument")
	}
	return cmd.Args().First(), nil
}

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Summarize the primary image",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			rec, err := dm.LoadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("shape:      %v\n", rec.Data.Shape)
			fmt.Printf("dtype:      %s\n", rec.Data.Kind)
			fmt.Printf("descriptor: sequence=%v collection=%d datum=%d\n",
				rec.Descriptor.IsSequence,
				rec.Descriptor.CollectionDimensionCount,
				rec.Descriptor.DatumDimensionCount)
			if rec.Title != "" {
				fmt.Printf("title:      %s\n", rec.Title)
			}
			if !rec.Timestamp.IsZero() {
				fmt.Printf("timestamp:  %s", rec.Timestamp.Format("2006-01-02 15:04:05"))
				if rec.Timezone != "" {
					fmt.Printf(" (%s)", rec.Timezone)
				}
				fmt.Println()
			}
			for i, c := range rec.Calibrations {
				fmt.Printf("axis %d:     offset=%g scale=%g units=%q\n", i, c.Offset, c.Scale, c.Units)
			}
			fmt.Printf("intensity:  offset=%g scale=%g units=%q\n",
				rec.Intensity.Offset, rec.Intensity.Scale, rec.Intensity.Units)
			return nil
		},
	}
}

func tagsCmd() *cli.Command {
	var maxElems int64
	return &cli.Command{
		Name:      "tags",
		Usage:     "Print the raw tag tree",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-elements", Usage: "array elements to print before eliding", Value: 8, Destination: &maxElems},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			root, version, err := tagfile.Read(f)
			if err != nil {
				return err
			}
			fmt.Printf("format version %d\n", version)
			printGroup(root, 0, int(maxElems))
			return nil
		},
	}
}

func metaCmd() *cli.Command {
	return &cli.Command{
		Name:      "meta",
		Usage:     "Print the primary image's metadata as JSON",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := fileArg(cmd)
			if err != nil {
				return err
			}
			rec, err := dm.LoadFile(path)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec.Metadata, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func printGroup(g *tagfile.Group, depth, maxElems int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range g.Entries {
		label := e.Name
		if !e.Named {
			label = "-"
		}
		switch v := e.Value.(type) {
		case *tagfile.Group:
			kind := "list"
			if v.Dict {
				kind = "dict"
			}
			fmt.Printf("%s%s: %s(%d)\n", indent, label, kind, len(v.Entries))
			printGroup(v, depth+1, maxElems)
		default:
			fmt.Printf("%s%s: %s\n", indent, label, leafString(e.Value, maxElems))
		}
	}
}

func leafString(n tagfile.Node, maxElems int) string {
	switch v := n.(type) {
	case tagfile.Scalar:
		return fmt.Sprintf("%s %v", v.Type, v.Value)
	case tagfile.String:
		return fmt.Sprintf("string %q", v.Text)
	case *tagfile.Array:
		if v.ElemType == tagfile.TypeUShort {
			if s, err := v.Text(); err == nil {
				return fmt.Sprintf("text %q", s)
			}
		}
		vals := v.IntValues()
		if vals == nil || len(vals) > maxElems {
			return fmt.Sprintf("%s array[%d]", v.ElemType, v.Count())
		}
		return fmt.Sprintf("%s array %v", v.ElemType, vals)
	case *tagfile.StructValue:
		parts := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			parts = append(parts, fmt.Sprint(f.Value))
		}
		return "struct (" + strings.Join(parts, ", ") + ")"
	case *tagfile.StructArray:
		return fmt.Sprintf("struct array[%d] of %v", v.Count(), v.FieldTypes)
	default:
		return fmt.Sprintf("%T", n)
	}
}
