// Copyright 2025 Insightra Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/insightrix/insightra/pkg/version"
	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "insightra-cli",
	Short: "insightra cli is a command line tool",
	Long:  "insightra cli is a command line tool",
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			return
		}
	},
}

var inputCmd = &cobra.Command{
	Use:   "input <projectId> <payload>",
	Short: "Register a new input version for a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return post(fmt.Sprintf("/api/v1/projects/%s/inputs", args[0]), args[1])
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <projectId>",
	Short: "Start or resume the run for a project's latest input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return post(fmt.Sprintf("/api/v1/projects/%s/runs", args[0]), "")
	},
}

var getCmd = &cobra.Command{
	Use:   "get <runId>",
	Short: "Show a run by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return get(fmt.Sprintf("/api/v1/runs/%s", args[0]))
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <projectId>",
	Short: "Show a project's most recent run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return get(fmt.Sprintf("/api/v1/projects/%s/runs/latest", args[0]))
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim <runId>",
	Short: "Requeue steps whose lease has expired",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return post(fmt.Sprintf("/api/v1/runs/%s/reclaim", args[0]), "")
	},
}

func client() *resty.Client {
	return resty.New().SetBaseURL(serverAddr)
}

func post(path, body string) error {
	req := client().R()
	if body != "" {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	fmt.Println(resp.String())
	if resp.IsError() {
		os.Exit(1)
	}
	return nil
}

func get(path string) error {
	resp, err := client().R().Get(path)
	if err != nil {
		return err
	}
	fmt.Println(resp.String())
	if resp.IsError() {
		os.Exit(1)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8080", "insightra server address")
	rootCmd.AddCommand(inputCmd, triggerCmd, getCmd, latestCmd, reclaimCmd, version.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
