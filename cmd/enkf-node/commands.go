package main

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"enkfcore/internal/ensemble"
	"enkfcore/internal/log"
	"enkfcore/internal/node/field"
	"enkfcore/internal/node/genkw"
	"enkfcore/internal/node/summary"
	"enkfcore/internal/storage"
	"enkfcore/pkg/nodeapi"
)

type typeRow struct {
	Impl uint32 `yaml:"impl"`
	Name string `yaml:"name"`
}

func (a *app) typesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the registered node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rows []typeRow
			for _, typ := range a.registry.Types() {
				rows = append(rows, typeRow{Impl: uint32(typ.Impl()), Name: typ.Name()})
			}
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer func() { _ = enc.Close() }()
				return enc.Encode(rows)
			case "table":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IMPL\tNAME")
				for _, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\n", r.Impl, r.Name)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func (a *app) initCmd() *cobra.Command {
	var (
		nodesPath string
		caseName  string
		size      int
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build every ensemble from a nodes file, initialize it and store step 0",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfgs, err := loadNodes(nodesPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("size") {
				size = a.cfg.Ensemble.Size
			}
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.Ensemble.Seed
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			defer a.reportMetrics(ctx)
			for _, cfg := range cfgs {
				ens, err := ensemble.New(a.registry, cfg, size, ensemble.WithWorkers(a.cfg.Ensemble.Workers))
				if err != nil {
					return err
				}
				initialized, err := ens.Initialize(ctx, seed)
				if err != nil {
					return err
				}
				if err := store.Save(ctx, caseName, 0, ens); err != nil {
					return err
				}
				logger := log.FromContext(ctx, a.logger)
				logger.Debug().Str("key", cfg.Key()).Bool("initialized", initialized).Msg("ensemble initialized")
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tmembers=%d\tinitialized=%t\n", cfg.Key(), cfg.Impl(), ens.Size(), initialized)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nodesPath, "nodes", "", "nodes definition file (YAML)")
	cmd.Flags().StringVar(&caseName, "case", "default", "storage case")
	cmd.Flags().IntVar(&size, "size", 0, "ensemble size (defaults to ensemble.size)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base random seed (defaults to ensemble.seed)")
	_ = cmd.MarkFlagRequired("nodes")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	var (
		nodesPath string
		caseName  string
		key       string
		step      int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load one stored ensemble step and summarise every member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfgs, err := loadNodes(nodesPath)
			if err != nil {
				return err
			}
			cfg, err := findNode(cfgs, key)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			defer a.reportMetrics(ctx)
			entries, err := store.Entries(ctx, caseName, key)
			if err != nil {
				return err
			}
			size := 0
			for _, e := range entries {
				if e.Step == step && e.Member+1 > size {
					size = e.Member + 1
				}
			}
			if size == 0 {
				return fmt.Errorf("%w: %s/%s step %d", storage.ErrNotStored, caseName, key, step)
			}
			ens, err := ensemble.New(a.registry, cfg, size, ensemble.WithWorkers(a.cfg.Ensemble.Workers))
			if err != nil {
				return err
			}
			loadErr := store.Load(ctx, caseName, step, ens)
			failed := memberErrors(loadErr)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MEMBER\tSTATUS\tSUMMARY")
			for iens, node := range ens.Members() {
				if err, ok := failed[iens]; ok {
					fmt.Fprintf(tw, "%d\terror\t%v\n", iens, err)
					continue
				}
				fmt.Fprintf(tw, "%d\tok\t%s\n", iens, describe(node))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return loadErr
		},
	}
	cmd.Flags().StringVar(&nodesPath, "nodes", "", "nodes definition file (YAML)")
	cmd.Flags().StringVar(&caseName, "case", "default", "storage case")
	cmd.Flags().StringVar(&key, "key", "", "node key to inspect")
	cmd.Flags().IntVar(&step, "step", 0, "report step")
	_ = cmd.MarkFlagRequired("nodes")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (a *app) dropCmd() *cobra.Command {
	var (
		caseName string
		key      string
		step     int
	)
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Remove the stored state of one key and step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			n, err := store.Drop(ctx, caseName, key, step)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d members of %s/%s step %d\n", n, caseName, key, step)
			return nil
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "default", "storage case")
	cmd.Flags().StringVar(&key, "key", "", "node key")
	cmd.Flags().IntVar(&step, "step", 0, "report step")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func memberErrors(err error) map[int]error {
	out := make(map[int]error)
	if err == nil {
		return out
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var me *storage.MemberError
		if errors.As(e, &me) {
			out[me.Member] = me.Err
		}
	}
	return out
}

// describe renders a one-line summary of a node.
func describe(node nodeapi.Node) string {
	switch n := node.(type) {
	case *field.Node:
		vals := n.Export()
		if len(vals) == 0 {
			return "cells=0"
		}
		lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
		for _, v := range vals {
			lo, hi, sum = math.Min(lo, v), math.Max(hi, v), sum+v
		}
		return fmt.Sprintf("cells=%d mean=%.4g min=%.4g max=%.4g", len(vals), sum/float64(len(vals)), lo, hi)
	case *genkw.Node:
		values := n.Transformed()
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%.4g", name, values[name])
		}
		return strings.Join(parts, " ")
	case *summary.Node:
		return fmt.Sprintf("steps=%d", n.Len())
	default:
		return node.Impl().String()
	}
}
