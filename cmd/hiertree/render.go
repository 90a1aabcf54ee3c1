package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/layout"
	"github.com/starford/hiertree/internal/parser"
	"github.com/starford/hiertree/internal/tree"
	"github.com/starford/hiertree/internal/treeservice"
)

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render the connector overlay of a tree document to stdout",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Tree document (.json or .yaml), - for stdin",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "collapsed",
				Usage: "Comma-separated ids of collapsed nodes",
			},
			&cli.FloatFlag{
				Name:  "gap",
				Usage: "Trunk offset from the child's left edge",
				Value: connector.DefaultGap,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: svg or json",
				Value:   "svg",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return render(os.Stdout, cmd.String("input"), cmd.String("collapsed"), cmd.Float("gap"), cmd.String("format"))
		},
	}
}

func render(w io.Writer, input, collapsedList string, gap float64, format string) error {
	var data []byte
	var err error
	if input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	nodes, err := parser.Parse(data)
	if err != nil {
		return err
	}
	if err := tree.Validate(nodes); err != nil {
		return err
	}

	collapsed := make(map[int64]bool)
	for _, part := range strings.Split(collapsedList, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid collapsed id %q", part)
		}
		collapsed[id] = true
	}

	view := treeservice.Render(nodes, treeservice.ConnectorQuery{Collapsed: collapsed, Gap: gap}, layout.DefaultOptions())

	switch format {
	case "svg":
		connector.RenderSVG(w, view.Paths, connector.Rect{Width: view.Width, Height: view.Height}, connector.SVGOptions{})
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	default:
		return fmt.Errorf("unknown format %q (want svg or json)", format)
	}
}
