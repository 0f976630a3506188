/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/config"
)

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Inspect and validate the track catalogue",
}

var catalogueValidatePath string

var catalogueValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the catalogue file (non-empty, unique ids, non-empty filenames)",
	RunE:  runCatalogueValidate,
}

func init() {
	catalogueValidateCmd.Flags().StringVar(&catalogueValidatePath, "path", "", "catalogue YAML path (defaults to DRIFTCAST_CATALOGUE_PATH)")
	catalogueCmd.AddCommand(catalogueValidateCmd)
	rootCmd.AddCommand(catalogueCmd)
}

func runCatalogueValidate(cmd *cobra.Command, args []string) error {
	path := catalogueValidatePath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.CataloguePath
	}

	cat, err := catalogue.Load(path)
	if err != nil {
		return fmt.Errorf("catalogue invalid: %w", err)
	}

	fmt.Printf("catalogue ok: %d tracks\n", len(cat.Tracks()))
	return nil
}
