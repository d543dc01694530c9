package main

import (
	"context"
	"fmt"
	"io"

	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/designhash"
	"github.com/niczy/designtree/internal/locking"
	"github.com/niczy/designtree/internal/logging"
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
	"github.com/niczy/designtree/internal/schema"
	"github.com/niczy/designtree/internal/tree"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	snapshotFile string
	nodePath     string
	pageName     string
	basePath     string
	checkAssets  bool
	opsFile      string
	isSnapshot   bool
)

var hashCmd = &cobra.Command{
	Use:   "hash <structure>",
	Short: "Print the structural hash of a structure document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHash(cmd.OutOrStdout(), args[0])
	},
}

var locksCmd = &cobra.Command{
	Use:   "locks <structure>",
	Short: "Print the selection of a structure, or the lock status of a node against a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocks(cmd.OutOrStdout(), args[0], snapshotFile, nodePath)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <document>",
	Short: "Validate a structure or snapshot document against its schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), args[0], isSnapshot)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <structure>",
	Short: "List the asset layers of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var checker assets.Checker
		if checkAssets {
			checker = assets.NewCachedChecker(assets.NewHTTPChecker(nil))
		}
		return runResolve(cmd.Context(), cmd.OutOrStdout(), args[0], pageName, basePath, checker)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <structure>",
	Short: "Apply a list of operations to a structure and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(cmd.OutOrStdout(), args[0], opsFile, snapshotFile)
	},
}

func registerLocalCommands(root *cobra.Command) {
	root.AddCommand(hashCmd, locksCmd, validateCmd, resolveCmd, applyCmd)

	locksCmd.Flags().StringVarP(&snapshotFile, "snapshot", "s", "", "Snapshot document to check against")
	locksCmd.Flags().StringVarP(&nodePath, "path", "p", "", "Node path, segments joined by "+nodepath.Delimiter)

	validateCmd.Flags().BoolVar(&isSnapshot, "snapshot", false, "Validate as a snapshot document")

	resolveCmd.Flags().StringVar(&pageName, "page", "", "Page name")
	resolveCmd.Flags().StringVar(&basePath, "base", "", "Base path or URL of the asset store")
	resolveCmd.Flags().BoolVar(&checkAssets, "check", false, "Drop layers whose asset does not answer a HEAD request")
	_ = resolveCmd.MarkFlagRequired("page")

	applyCmd.Flags().StringVarP(&opsFile, "ops", "o", "", "Operations document (a list of requests)")
	applyCmd.Flags().StringVarP(&snapshotFile, "snapshot", "s", "", "Snapshot document whose selection is locked")
	_ = applyCmd.MarkFlagRequired("ops")
}

func runHash(w io.Writer, structurePath string) error {
	s, err := readStructure(structurePath)
	if err != nil {
		return err
	}
	logging.Log.WithField("parts", designhash.CanonicalParts(s.Components, s.Pages, s.BaseDrawing)).Debug("hash input")
	_, err = fmt.Fprintln(w, designhash.ForStructure(s))
	return err
}

type locksReport struct {
	Selection []models.SelectionPath `json:"selection"`
	Changed   *bool                  `json:"changed,omitempty"`
	Status    *locking.LockStatus    `json:"status,omitempty"`
}

func runLocks(w io.Writer, structurePath, snapshotPath, rawPath string) error {
	s, err := readStructure(structurePath)
	if err != nil {
		return err
	}
	report := locksReport{Selection: locking.ExtractSelectionPaths(s.Components)}
	if snapshotPath != "" {
		snap, err := readSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		changed := locking.HasSelectionChanged(s.Components, snap)
		report.Changed = &changed
		if rawPath != "" {
			p, err := nodepath.Parse(rawPath)
			if err != nil {
				return err
			}
			st := locking.StatusAt(s.Components, p, snap)
			report.Status = &st
		}
	}
	return writeJSON(w, report)
}

func runValidate(w io.Writer, path string, snapshot bool) error {
	raw, err := readDocument(path)
	if err != nil {
		return err
	}
	v, err := schema.NewValidator()
	if err != nil {
		return err
	}
	if snapshot {
		err = v.ValidateSnapshot(raw)
	} else {
		err = v.ValidateStructure(raw)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: ok\n", path)
	return err
}

func runResolve(ctx context.Context, w io.Writer, structurePath, page, base string, checker assets.Checker) error {
	s, err := readStructure(structurePath)
	if err != nil {
		return err
	}
	if !s.Pages.Has(page) {
		return fmt.Errorf("unknown page %q", page)
	}
	layers := assets.ResolvePage(s, page, base)
	if checker != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		layers = assets.Filter(ctx, checker, layers)
	}
	return writeJSON(w, layers)
}

func runApply(w io.Writer, structurePath, opsPath, snapshotPath string) error {
	s, err := readStructure(structurePath)
	if err != nil {
		return err
	}
	snap, err := readSnapshot(snapshotPath)
	if err != nil {
		return err
	}
	reqs, err := readRequests(opsPath)
	if err != nil {
		return err
	}

	components := s.Components
	var collected []string
	for i, req := range reqs {
		op, err := req.Decode()
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		if err := locking.CheckOperation(components, op, snap); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		res, err := tree.Apply(components, op)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		components = res.Tree
		collected = append(collected, res.FilesToDelete...)
	}
	if len(collected) > 0 {
		logging.Log.WithFields(logrus.Fields{"files": collected}).Info("files no longer referenced")
	}
	s.Components = components
	return writeJSON(w, s)
}
