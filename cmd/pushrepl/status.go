/*
 * Copyright 2024 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mobiledb/pushrepl/pkg/replicator"
	replicatorserver "github.com/mobiledb/pushrepl/server/replicator"
)

// renderStatus writes the replicator observables spec.md §4.1 and §6
// expose (running, lastSequence, changesProcessed, error) as a table.
func renderStatus(w io.Writer, p *replicatorserver.Pusher) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	tw.AppendHeader(table.Row{
		"SESSION ID",
		"STATE",
		"LAST SEQUENCE",
		"CHANGES TOTAL",
		"CHANGES PROCESSED",
		"ERROR",
	})

	errMsg := ""
	if err := p.Err(); err != nil {
		errMsg = err.Error()
	}

	tw.AppendRow(table.Row{
		p.SessionID(),
		p.State().Observe(),
		p.LastSequence(),
		p.ChangesTotal(),
		p.ChangesProcessed(),
		errMsg,
	})
	tw.Render()
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [options]",
		Short: "Run a one-shot push replication and print its final status",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagContinuous = false

			p, sessionID, err := buildPusher(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Start(cmd.Context()); err != nil {
				renderStatus(cmd.OutOrStdout(), p)
				return err
			}
			cmd.Printf("pushrepl: running one-shot replication for session %s\n", sessionID)

			deadline := time.Now().Add(gracefulTimeout)
			for p.State() != replicator.StateStopped && time.Now().Before(deadline) {
				time.Sleep(50 * time.Millisecond)
			}

			renderStatus(cmd.OutOrStdout(), p)
			if time.Now().After(deadline) {
				return fmt.Errorf("status: timed out waiting for replication to finish")
			}
			return nil
		},
	}

	registerCommonFlags(cmd)
	return cmd
}
