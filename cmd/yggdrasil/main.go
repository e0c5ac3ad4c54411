// Package main provides the yggdrasil CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/yggdrasil/pkg/config"
	"github.com/orneryd/yggdrasil/pkg/dataflow"
	"github.com/orneryd/yggdrasil/pkg/numeric"
	"github.com/orneryd/yggdrasil/pkg/optimize"
	"github.com/orneryd/yggdrasil/pkg/phylo"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "yggdrasil",
		Short: "Yggdrasil - Incremental phylogenetic likelihood engine",
		Long: `Yggdrasil compiles phylogenetic likelihood computations into dataflow
graphs: changing a branch length or a model parameter recomputes only the
part of the tree that depends on it.

Features:
  • Pull-based evaluation with minimal invalidation
  • Common-subexpression sharing across computations
  • Symbolic branch-length derivatives
  • Gradient-based and derivative-free optimization
  • Graphviz dumps of computation graphs`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Yggdrasil v%s (%s)\n", version, commit)
		},
	})

	likCmd := &cobra.Command{
		Use:   "lik",
		Short: "Evaluate the log-likelihood of an alignment on a tree",
		RunE:  runLik,
	}
	addRunFlags(likCmd)
	likCmd.Flags().Bool("derivatives", false, "Also report branch length derivatives")
	rootCmd.AddCommand(likCmd)

	optCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize branch lengths by maximum likelihood",
		RunE:  runOptimize,
	}
	addRunFlags(optCmd)
	rootCmd.AddCommand(optCmd)

	dotCmd := &cobra.Command{
		Use:   "dot",
		Short: "Dump the likelihood computation graph in Graphviz format",
		RunE:  runDot,
	}
	addRunFlags(dotCmd)
	dotCmd.Flags().Bool("registry", false, "Include registry key nodes")
	dotCmd.Flags().Bool("detailed", false, "Include value and validity details")
	rootCmd.AddCommand(dotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().String("tree", "", "Newick tree file")
	cmd.Flags().String("alignment", "", "FASTA alignment file")
	cmd.Flags().Float64("kappa", 0, "Transition/transversion ratio (model default if unset)")
	cmd.Flags().Float64("theta", 0, "Equilibrium GC content (model default if unset)")
}

// loadRun resolves configuration from file, environment and flags, flags
// winning, and compiles the likelihood graph.
func loadRun(cmd *cobra.Command) (*dataflow.Context, *phylo.LikelihoodGraph, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.LoadFromEnvOrFile(path)
	if v, _ := cmd.Flags().GetString("tree"); v != "" {
		cfg.TreeFile = v
	}
	if v, _ := cmd.Flags().GetString("alignment"); v != "" {
		cfg.AlignmentFile = v
	}
	if v, _ := cmd.Flags().GetFloat64("kappa"); v != 0 {
		cfg.Model.Kappa = v
	}
	if v, _ := cmd.Flags().GetFloat64("theta"); v != 0 {
		cfg.Model.Theta = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	treeData, err := os.ReadFile(cfg.TreeFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading tree: %w", err)
	}
	tree, err := phylo.ParseNewick(string(treeData))
	if err != nil {
		return nil, nil, nil, err
	}

	alignFile, err := os.Open(cfg.AlignmentFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading alignment: %w", err)
	}
	defer alignFile.Close()
	align, err := phylo.ReadFasta(alignFile)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := dataflow.NewContext()
	g, err := phylo.BuildLogLikelihood(ctx, tree, align, phylo.T92{}, cfg.ModelParameters())
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, g, cfg, nil
}

func runLik(cmd *cobra.Command, args []string) error {
	ctx, g, _, err := loadRun(cmd)
	if err != nil {
		return err
	}

	ll, err := g.LogLikelihood()
	if err != nil {
		return err
	}
	fmt.Printf("log-likelihood: %.6f\n", ll)

	if derivs, _ := cmd.Flags().GetBool("derivatives"); derivs {
		for b := 0; b < len(g.BranchLengths); b++ {
			d, err := g.Root.Derive(ctx, g.BranchLengths[b])
			if err != nil {
				return err
			}
			v, err := dataflow.Value[float64](d)
			if err != nil {
				return err
			}
			fmt.Printf("d/dbrlen[%d]: %.6f\n", b, v)
		}
	}
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, g, cfg, err := loadRun(cmd)
	if err != nil {
		return err
	}

	start, err := g.LogLikelihood()
	if err != nil {
		return err
	}
	fmt.Printf("initial log-likelihood: %.6f\n", start)

	if !cfg.OptimizeBranches() {
		return fmt.Errorf("nothing to optimize: branch optimization disabled")
	}

	neg, err := numeric.NewCWiseNeg(ctx, g.Root)
	if err != nil {
		return err
	}
	params := make(map[string]*dataflow.Node, len(g.BranchLengths))
	for b, n := range g.BranchLengths {
		params[fmt.Sprintf("brlen[%d]", b)] = n
	}
	f, err := optimize.NewFunction(ctx, neg, params)
	if err != nil {
		return err
	}

	res, err := optimize.Minimize(f, optimize.Settings{
		MaxEvaluations:    cfg.Optimize.MaxEvaluations,
		ForceGradientFree: cfg.Optimize.GradientFree,
	})
	if err != nil {
		return err
	}

	fmt.Printf("final log-likelihood: %.6f (%d evaluations)\n", -res.Value, res.Evaluations)
	for _, name := range f.ParameterNames() {
		fmt.Printf("%s = %.6f\n", name, res.Parameters[name])
	}
	return nil
}

func runDot(cmd *cobra.Command, args []string) error {
	ctx, g, _, err := loadRun(cmd)
	if err != nil {
		return err
	}

	var opts dataflow.DotOptions
	if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
		opts |= dataflow.DotDetailedNodeInfo
	}
	if registry, _ := cmd.Flags().GetBool("registry"); registry {
		return dataflow.WriteRegistryDot(os.Stdout, ctx, opts)
	}
	return dataflow.WriteDot(os.Stdout, opts, g.Root)
}
