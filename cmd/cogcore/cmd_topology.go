// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aleutian-ai/coggraph/contract"
)

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the contract state-machine topology as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo := contract.Topology()
			out := map[string]any{
				"statuses":           contract.AllStatuses(),
				"edges":              topo.Edges(),
				"forbidden":          topo.ForbiddenEdges(),
				"terminal_statuses":  topo.TerminalStatuses(),
				"resumable_statuses": topo.ResumableStatuses(),
				"initial_status":     topo.InitialStatus(),
			}
			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}
