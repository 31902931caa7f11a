package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/dualc/ir"
	"github.com/sbl8/dualc/model"
	"github.com/sbl8/dualc/runtime"
	"github.com/sbl8/dualc/value"
)

var (
	runInputs     []string
	runBatchPath  string
	runDescriptor string
	runStrict     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan|descriptor>",
		Short: "Run a plan file, or compile and run a descriptor",
		Long: `Run executes a compiled plan (` + PlanExt + `) or compiles a descriptor and runs it.

Runtime parameters are bound with --in name=value. A state is its index
(--in x=21); an element is "element" followed by blade:r:s:coeff terms
(--in "u=element 1:0:0:1 1,2:1:0:0.5").

When a fast plan meets an element that is not a single basis term, the run
is retried on the general backend if runtime.fallback is set and the
descriptor is known (given directly or with --descriptor).`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringArrayVar(&runInputs, "in", nil, "bind a runtime parameter (name=value), repeatable")
	cmd.Flags().StringVar(&runBatchPath, "batch", "", "YAML file with a list of bindings; runs each in parallel")
	cmd.Flags().StringVar(&runDescriptor, "descriptor", "", "descriptor a plan file was compiled from, for fallback")
	cmd.Flags().BoolVar(&runStrict, "strict-overflow", false, "fail when a tracked ring operation wraps around")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, relower, err := loadRunnable(ctx, args[0])
	if err != nil {
		return err
	}
	if !app.cfg.Runtime.Fallback {
		relower = nil
	}
	out := cmd.OutOrStdout()

	if runBatchPath != "" {
		batch, err := loadBatch(runBatchPath)
		if err != nil {
			return err
		}
		results, err := app.engine.RunBatch(ctx, p, batch)
		if err != nil {
			return err
		}
		for i, res := range results {
			fmt.Fprintf(out, "[%d] ", i)
			if err := printResult(out, res); err != nil {
				return err
			}
		}
		return nil
	}

	inputs, err := parseBindings(runInputs)
	if err != nil {
		return err
	}
	res, err := app.engine.RunWithFallback(ctx, p, inputs, relower)
	if err != nil {
		return err
	}
	return printResult(out, res)
}

// loadRunnable returns the plan at path and, when its descriptor is known,
// a relower for fallback.
func loadRunnable(ctx context.Context, path string) (model.Plan, runtime.Relower, error) {
	descPath := runDescriptor
	var p model.Plan
	if isPlanFile(path) {
		var err error
		if p, err = readPlan(path); err != nil {
			return nil, nil, err
		}
	} else {
		descPath = path
	}
	if descPath == "" {
		return p, nil, nil
	}

	desc, err := model.LoadDescriptor(descPath)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		if p, err = app.compiler.Compile(ctx, desc); err != nil {
			return nil, nil, err
		}
	}
	relower := func(ctx context.Context) (model.Plan, error) {
		return app.compiler.CompileFor(ctx, desc, model.BackendGeneral)
	}
	return p, relower, nil
}

// parseBindings decodes name=value pairs.
func parseBindings(pairs []string) (map[string]value.Value, error) {
	inputs := make(map[string]value.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("binding %q: want name=value", pair)
		}
		v, err := parseValue(name, raw)
		if err != nil {
			return nil, err
		}
		inputs[name] = v
	}
	return inputs, nil
}

func parseValue(name, raw string) (value.Value, error) {
	param, err := model.ParseParam(strings.Fields(raw))
	if err != nil {
		return nil, fmt.Errorf("binding %q: %w", name, err)
	}
	return ir.ParamValue(name, param)
}

// loadBatch reads a YAML sequence of name -> value maps.
func loadBatch(path string) ([]map[string]value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("batch file %s: %w", path, err)
	}
	batch := make([]map[string]value.Value, len(raw))
	for i, set := range raw {
		batch[i] = make(map[string]value.Value, len(set))
		for name, s := range set {
			v, err := parseValue(name, s)
			if err != nil {
				return nil, fmt.Errorf("batch item %d: %w", i, err)
			}
			batch[i][name] = v
		}
	}
	return batch, nil
}

func printResult(w io.Writer, res *runtime.Result) error {
	fmt.Fprintf(w, "%s (backend=%s", res.Value, res.Backend)
	if res.FellBack {
		fmt.Fprint(w, ", fell back")
	}
	fmt.Fprintf(w, ", ops=%d, lookups=%d, bridges=%d)\n",
		res.Stats.Ops, res.Stats.TableLookups, res.Stats.Bridges)

	for _, o := range res.Overflow {
		fmt.Fprintf(w, "  overflow: step %d %s carry %d\n", o.Step, o.Op, o.Carry)
	}
	if runStrict {
		return res.OverflowErr()
	}
	return nil
}
