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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/mobiledb/pushrepl/pkg/logging"
	"github.com/mobiledb/pushrepl/pkg/replicator"
	"github.com/mobiledb/pushrepl/pkg/replicator/db/memstore"
	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
	replicatorserver "github.com/mobiledb/pushrepl/server/replicator"
)

var gracefulTimeout = 10 * time.Second

var (
	flagRemoteURL         string
	flagLocalDBUUID       string
	flagFilterName        string
	flagContinuous        bool
	flagCreateTarget      bool
	flagIncludeConflicts  bool
	flagLogLevel          string
	flagBasicAuthUser     string
	flagBasicAuthPassword string
)

// buildPusher wires a Pusher the same way the CLI's only local-store
// option, the in-memory reference store, is meant to be exercised
// (spec.md §1 "the local store is out of scope"; SPEC_FULL.md §10.4).
func buildPusher(cmd *cobra.Command) (*replicatorserver.Pusher, string, error) {
	if flagRemoteURL == "" {
		return nil, "", fmt.Errorf("--remote-url is required")
	}
	if err := logging.SetLogLevel(flagLogLevel); err != nil {
		return nil, "", err
	}

	localDBUUID := flagLocalDBUUID
	if localDBUUID == "" {
		localDBUUID = xid.New().String()
	}

	sessionID := replicator.SessionID(localDBUUID, flagRemoteURL, true, flagFilterName, nil, nil)

	cfg := replicatorserver.NewConfig(flagRemoteURL)
	cfg.FilterName = flagFilterName
	cfg.Continuous = flagContinuous
	cfg.CreateTarget = flagCreateTarget
	cfg.IncludeConflicts = flagIncludeConflicts
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	store, err := memstore.New()
	if err != nil {
		return nil, "", fmt.Errorf("new in-memory local store: %w", err)
	}

	var authorizer transport.Authorizer
	if flagBasicAuthUser != "" {
		authorizer = &transport.BasicAuthorizer{Username: flagBasicAuthUser, Password: flagBasicAuthPassword}
	}

	httpOpts := transport.DefaultOptions(flagRemoteURL)
	httpOpts.Authorizer = authorizer
	t, err := transport.NewHTTPTransport(httpOpts)
	if err != nil {
		return nil, "", fmt.Errorf("new transport: %w", err)
	}

	cmd.Printf("pushrepl: using ephemeral in-memory local store (localDBUUID=%s); "+
		"the CLI has nothing yet to push until the store's memstore.PutRevision is "+
		"driven by an embedding program\n", localDBUUID)

	return replicatorserver.NewPusher(cfg, store, t, sessionID), sessionID, nil
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [options]",
		Short: "Start a push replicator against a remote target database",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, sessionID, err := buildPusher(cmd)
			if err != nil {
				return err
			}

			if err := p.Start(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("pushrepl: started session %s against %s\n", sessionID, flagRemoteURL)

			code := handleSignal(cmd, p)
			renderStatus(cmd.OutOrStdout(), p)
			if code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}

	registerCommonFlags(cmd)
	return cmd
}

func handleSignal(cmd *cobra.Command, p *replicatorserver.Pusher) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	idleCh := make(chan struct{})
	stopPolling := make(chan struct{})
	go func() {
		defer close(idleCh)
		for {
			select {
			case <-stopPolling:
				return
			default:
			}
			if s := p.State(); s == replicator.StateStopped || s == replicator.StateError {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-sigCh:
		close(stopPolling)
	case <-idleCh:
		p.Close()
		return 0
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := p.Stop(); err != nil {
			cmd.PrintErrln(err)
		}
		p.Close()
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func registerCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagRemoteURL, "remote-url", "", "Base URL of the remote target database")
	cmd.Flags().StringVar(&flagLocalDBUUID, "local-db-uuid", "", "Stable identity of the local database (random if omitted)")
	cmd.Flags().StringVar(&flagFilterName, "filter-name", "", "Name of a filter registered in the local store")
	cmd.Flags().BoolVar(&flagContinuous, "continuous", false, "Keep observing local changes after the initial catch-up scan")
	cmd.Flags().BoolVar(&flagCreateTarget, "create-target", false, "Create the remote target database if it does not already exist")
	cmd.Flags().BoolVar(&flagIncludeConflicts, "include-conflicts", false, "Replicate every conflicting leaf revision, not just the winner")
	cmd.Flags().StringVarP(&flagLogLevel, "log-level", "l", "info", "Log level: debug, info, warn, error, panic, fatal")
	cmd.Flags().StringVar(&flagBasicAuthUser, "basic-auth-user", "", "Username for HTTP basic auth against the remote")
	cmd.Flags().StringVar(&flagBasicAuthPassword, "basic-auth-password", "", "Password for HTTP basic auth against the remote")
}
