package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	remediations "github.com/Root-IO-Labs/redhat-remediations"
	"github.com/Root-IO-Labs/redhat-remediations/internal/build"
	"github.com/Root-IO-Labs/redhat-remediations/internal/buildenv"
)

const defaultConfigPath = "remediation.yml"

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [flags] <command> [command flags]

commands:
  build    fetch the package sources, inject patches and rebuild rpms
  fetch    fetch and unpack the package sources only
  inject   rewrite a spec file with patches injected, without building

`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)

	switch flag.Arg(0) {
	case "build":
		err = cmdBuild(ctx, flag.Args()[1:])
	case "fetch":
		err = cmdFetch(ctx, flag.Args()[1:])
	case "inject":
		err = cmdInject(flag.Args()[1:])
	case "":
		usage()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

// releasesFlag collects repeated -release flags.
type releasesFlag []string

func (r *releasesFlag) String() string {
	return strings.Join(*r, ",")
}

func (r *releasesFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func loadWithOverrides(fs *flag.FlagSet, args []string) (*remediations.Remediation, error) {
	var (
		configPath = fs.String("f", defaultConfigPath, "path to the remediation config")
		outputDir  = fs.String("output", "", "override the configured output directory")
		releases   releasesFlag
	)
	fs.Var(&releases, "release", "override the configured releases (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rem, err := remediations.ReadRemediationFile(*configPath)
	if err != nil {
		return nil, err
	}
	if *outputDir != "" {
		rem.OutputDir = *outputDir
	}
	if len(releases) > 0 {
		rem.Releases = releases
	}
	return rem, nil
}

func cmdBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	rem, err := loadWithOverrides(fs, args)
	if err != nil {
		return err
	}

	env, err := buildenv.New()
	if err != nil {
		return err
	}

	report, err := build.New(env, rem).Run(ctx)
	if err != nil {
		return err
	}

	for _, rel := range report.Releases {
		for _, a := range rel.Artifacts {
			fmt.Printf("%s\t%s\t%s\n", rel.Release, a.Digest, a.Path)
		}
	}
	return nil
}

func cmdFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	rem, err := loadWithOverrides(fs, args)
	if err != nil {
		return err
	}

	env, err := buildenv.New()
	if err != nil {
		return err
	}

	return build.New(env, rem).Fetch(ctx)
}

// cmdInject is the offline path: rewrite a spec file on disk with the patch
// set injected, without touching a container engine.
func cmdInject(args []string) error {
	fs := flag.NewFlagSet("inject", flag.ContinueOnError)
	var (
		specPath = fs.String("spec", "", "path to the spec file to rewrite (required)")
		patchDir = fs.String("patch-dir", "", "directory holding the patch files (required)")
		output   = fs.String("o", "", "write the result here instead of in place; - for stdout")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specPath == "" || *patchDir == "" {
		fs.Usage()
		return fmt.Errorf("-spec and -patch-dir are required")
	}

	ps, err := remediations.LoadPatchSet(*patchDir, nil)
	if err != nil {
		return err
	}

	dt, err := os.ReadFile(*specPath)
	if err != nil {
		return err
	}

	doc, err := remediations.Inject(remediations.ParseSpec(dt), ps.Names())
	if err != nil {
		return err
	}

	switch *output {
	case "-":
		_, err = os.Stdout.Write(doc.Bytes())
		return err
	case "":
		*output = *specPath
	}
	return os.WriteFile(*output, doc.Bytes(), 0o644)
}
