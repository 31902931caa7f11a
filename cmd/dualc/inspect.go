package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/model"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <plan>",
		Short: "Print a plan file's header, constants and ops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPlan(args[0])
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), p)
		},
	}
}

func printPlan(w io.Writer, p model.Plan) error {
	h := p.PlanHeader()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", h.ID)
	fmt.Fprintf(tw, "name:\t%s\n", qualifiedName(h))
	fmt.Fprintf(tw, "fingerprint:\t%s\n", h.Fingerprint)
	fmt.Fprintf(tw, "class:\t%s\n", h.Class)
	fmt.Fprintf(tw, "backend:\t%s\n", p.Backend())
	inputs := make([]string, len(h.Inputs))
	for i, in := range h.Inputs {
		inputs[i] = in.Name + ":" + in.Kind.String()
	}
	fmt.Fprintf(tw, "inputs:\t%s\n", strings.Join(inputs, " "))
	fmt.Fprintf(tw, "output:\t%s (%s)\n", h.Output, h.OutputKind)
	if err := tw.Flush(); err != nil {
		return err
	}

	switch plan := p.(type) {
	case *model.ClassPlan:
		for i, c := range plan.Consts {
			fmt.Fprintf(w, "const[%d] = %s\n", i, c)
		}
	case *model.AlgebraPlan:
		for i, e := range plan.Consts {
			fmt.Fprintf(w, "const[%d] = %s\n", i, e)
		}
	}

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tOP\tARGS\tPARAMS")
	for i, op := range p.PlanOps() {
		args := make([]string, len(op.Args))
		for j, a := range op.Args {
			args[j] = a.String()
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i, op.Step, op.Name, strings.Join(args, ","), formatParams(op))
	}
	for _, o := range h.StaticOverflow {
		fmt.Fprintf(tw, "static overflow:\tstep %d\t%s\tcarry %d\t\n", o.Step, o.Op, o.Carry)
	}
	return tw.Flush()
}

func qualifiedName(h *model.Header) string {
	name := h.Name
	if h.Namespace != "" {
		name = h.Namespace + "/" + name
	}
	if h.Version != "" {
		name += "@" + h.Version
	}
	return name
}

func formatParams(op model.Op) string {
	var parts []string
	if op.Params.Power != 0 {
		parts = append(parts, fmt.Sprintf("power=%d", op.Params.Power))
	}
	if op.Name == kernels.NameGradeProject {
		parts = append(parts, fmt.Sprintf("grade=%d", op.Params.Grade))
	}
	if op.Params.Scalar != 0 {
		parts = append(parts, fmt.Sprintf("scalar=%g", op.Params.Scalar))
	}
	if op.Params.Overflow == kernels.OverflowTrack {
		parts = append(parts, "overflow="+op.Params.Overflow.String())
	}
	if op.Params.Table != nil {
		parts = append(parts, "table")
	}
	return strings.Join(parts, " ")
}
