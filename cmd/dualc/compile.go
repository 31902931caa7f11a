package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sbl8/dualc/model"
)

var compileOut string

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <descriptor>",
		Short: "Compile a descriptor (.yaml or text form) into a plan file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	cmd.Flags().StringVarP(&compileOut, "output", "o", "", "plan file to write (default: <descriptor>"+PlanExt+")")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	src := args[0]
	out := compileOut
	if out == "" {
		out = defaultPlanPath(src)
	}

	p, err := app.compiler.CompileFile(cmd.Context(), src, out)
	if err != nil {
		return err
	}
	h := p.PlanHeader()
	fmt.Fprintf(cmd.OutOrStdout(), "compiled %s -> %s (%s, %s backend, %d ops)\n",
		src, out, h.Class, p.Backend(), len(p.PlanOps()))
	return nil
}

func defaultPlanPath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + PlanExt
}

func readPlan(path string) (model.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.Read(f)
}

func isPlanFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), PlanExt)
}
