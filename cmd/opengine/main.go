// Command opengine is a thin entrypoint wiring config, logging, the model
// loader, the SSH pool, and the engine into a runnable binary. Argument
// parsing stays minimal and non-authoritative (spec.md's Non-goal on CLI
// argument parsing) — it exists only so the engine is reachable as a
// program, not as a full CLI surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opereon/opereon-sub000/internal/config"
	"github.com/opereon/opereon-sub000/internal/engine"
	"github.com/opereon/opereon-sub000/internal/logging"
	"github.com/opereon/opereon-sub000/internal/opcontext"
	"github.com/opereon/opereon-sub000/internal/operation"
	"github.com/opereon/opereon-sub000/internal/opeval"
	"github.com/opereon/opereon-sub000/internal/sshsession"

	"github.com/joeycumines/logiface"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("opengine", flag.ContinueOnError)
	repoDir := fs.String("repo", ".", "model repository directory")
	configPath := fs.String("config", "", "path to a .operc config document (toml or yaml)")
	verb := fs.String("verb", "query", "operation to run: query|test|commit|init")
	expr := fs.String("expr", ".", "opath expression for query")
	message := fs.String("message", "", "commit message")
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	level := logiface.LevelInformational
	if *verbose {
		level = logiface.LevelDebug
	}
	log := logging.New(os.Stderr, level)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}

	sshPool := sshsession.NewPool(sshsession.Config{
		SSHBin:         cfg.SSHBin,
		SocketDir:      cfg.SocketDir,
		ConnectTimeout: cfg.SSHConnectTimeout,
		Log:            log,
	}, cfg.SSHCacheCapacity)

	deps := engine.Deps{
		RepoDir:     *repoDir,
		Evaluator:   opeval.DotPath{},
		Differ:      opeval.StructuralDiff{},
		SSHPool:     sshPool,
		RsyncBin:    cfg.RsyncBin,
		StagingRoot: cfg.StagingRoot,
	}

	eng := engine.New(log, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer sshPool.CloseAll(context.Background())

	op, err := buildTopLevelOp(*verb, *expr, *message, *repoDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	done := eng.Enqueue(op)
	<-done
	eng.Stop()
	if err := <-runErr; err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	out, opErr, _ := op.TakeOutcome()
	if opErr != nil {
		fmt.Fprintln(os.Stderr, opErr)
		return 1
	}
	if !out.IsEmpty() {
		fmt.Fprintf(os.Stdout, "%v\n", out.Node)
	}
	return 0
}

func buildTopLevelOp(verb, expr, message, path string) (*operation.Operation, error) {
	var ctx opcontext.Context
	switch verb {
	case "query":
		ctx = opcontext.Context{Tag: opcontext.ModelQuery, ModelQuery: &opcontext.ModelQueryPayload{RevPath: opcontext.CurrentRev(), Expr: expr}}
	case "test":
		ctx = opcontext.Context{Tag: opcontext.ModelTest, ModelTest: &opcontext.ModelTestPayload{RevPath: opcontext.CurrentRev()}}
	case "commit":
		ctx = opcontext.Context{Tag: opcontext.ModelCommit, ModelCommit: &opcontext.ModelCommitPayload{Message: message}}
	case "init":
		ctx = opcontext.Context{Tag: opcontext.ModelInit, ModelInit: &opcontext.ModelInitPayload{Path: path}}
	default:
		return nil, fmt.Errorf("opengine: unknown -verb %q", verb)
	}
	return operation.New(verb, ctx), nil
}
