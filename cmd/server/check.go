package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/bluefermion/annotator/internal/catalog"
)

func checkCatalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-catalog",
		Usage: "Load the component catalog and report usages whose definition is missing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "catalog",
				Aliases: []string{"f"},
				Usage:   "Check `FILE` instead of the configured catalog",
			},
		},
		Action: runCheckCatalog,
	}
}

func runCheckCatalog(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if path := c.String("catalog"); path != "" {
		cfg.Catalog.Path = path
	}
	if cfg.Catalog.Path == "" {
		return fmt.Errorf("no catalog configured (set catalog.path or pass --catalog)")
	}

	resolver, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	return reportCatalog(c.App.Writer, cfg.Catalog.Path, resolver.Catalog.Len(), resolver.Registry.Len(), danglingLines(resolver))
}

// reportCatalog prints the summary and fails when any usage dangles.
func reportCatalog(w io.Writer, path string, defs, usages int, dangling []string) error {
	fmt.Fprintf(w, "%s: %d definitions, %d usages\n", path, defs, usages)
	for _, line := range dangling {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if len(dangling) > 0 {
		return cli.Exit(fmt.Sprintf("%d usage(s) reference missing definitions", len(dangling)), 1)
	}
	fmt.Fprintln(w, "OK")
	return nil
}

func danglingLines(r *catalog.Resolver) []string {
	var out []string
	for _, u := range r.Registry.Dangling(r.Catalog) {
		loc := u.FilePath
		if loc != "" && u.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, u.Line)
		}
		out = append(out, fmt.Sprintf("usage %q -> missing definition %q %s", u.ID, u.DefinitionID, loc))
	}
	return out
}
