// Command helios loads a geometry description, validates it and sweeps
// straight-line rays through it, reporting how often each cell is entered.
//
// Usage:
//
//	helios [-env file] [-origin x,y,z] geometry.lisp
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/xiaopingguo165/helios/internal/config"
	"github.com/xiaopingguo165/helios/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "helios: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("helios", flag.ContinueOnError)
	envFile := fs.String("env", "", "load settings from this env file instead of .env")
	originFlag := fs.String("origin", "0,0,0", "ray origin as x,y,z")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: helios [-env file] [-origin x,y,z] geometry.lisp")
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	log := logger.Init(cfg.Logging, os.Stderr)

	origin, err := parseVec(*originFlag)
	if err != nil {
		return fmt.Errorf("-origin: %w", err)
	}
	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	app := NewApp(cfg, log)
	tr, err := app.LoadGeometry(string(source))
	if err != nil {
		return err
	}
	return app.Sweep(tr, origin).Write(os.Stdout)
}

func parseVec(s string) (v3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v3.Vec{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v3.Vec{}, err
		}
		xyz[i] = f
	}
	return v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
