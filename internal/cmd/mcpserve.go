package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/saadnvd1/agentos/internal/orchestrator"
)

var mcpServeCmd = &cobra.Command{
	Use:    "mcp-serve",
	Short:  "Serve the conductor toolset over MCP stdio (internal)",
	Hidden: true,
	Long: `Serve the conductor toolset as an MCP stdio server.

This is launched by the agent CLI via the per-session MCP manifest, not by
users. Tool calls proxy to the AgentOS server named by AGENTOS_URL; the
default conductor comes from CONDUCTOR_SESSION_ID.`,
	RunE: runMCPServe,
}

func runMCPServe(cmd *cobra.Command, args []string) error {
	client := orchestrator.NewClientFromEnv()

	s := mcpserver.NewMCPServer("agentos", versionString(),
		mcpserver.WithToolCapabilities(false))

	addSpawnWorker(s, client)
	addListWorkers(s, client)
	addGetWorkerOutput(s, client)
	addSendToWorker(s, client)
	addWorkerTransition(s, client, "complete_worker",
		"Mark a worker's task as successfully completed.", client.CompleteWorker)
	addWorkerTransition(s, client, "fail_worker",
		"Mark a worker's task as failed.", client.FailWorker)
	addKillWorker(s, client)
	addWorkersSummary(s, client)

	return mcpserver.ServeStdio(s)
}

// textResult marshals v as indented JSON tool output.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("%v", v))
	}
	return mcp.NewToolResultText(string(data))
}

// errResult renders an orchestrator error as tool text; tool-level errors
// are content for the model, never protocol faults.
func errResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func addSpawnWorker(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("spawn_worker",
		mcp.WithDescription("Spawn a worker agent session to carry out a task in its own git worktree."),
		mcp.WithString("task", mcp.Required(), mcp.Description("What the worker should do")),
		mcp.WithString("working_directory", mcp.Description("Repository to work in; defaults to the conductor's")),
		mcp.WithString("branch_name", mcp.Description("Feature name for the branch; generated from the task when omitted")),
		mcp.WithBoolean("use_worktree", mcp.Description("Isolate the worker in a fresh worktree (default true)")),
		mcp.WithString("model", mcp.Description("Model for the worker (default sonnet)")),
		mcp.WithString("agent_type", mcp.Description("Agent CLI to run (default claude)")),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := req.RequireString("task")
		if err != nil {
			return errResult(err), nil
		}
		useWorktree := req.GetBool("use_worktree", true)
		id, err := client.SpawnWorker(ctx, orchestrator.SpawnSpec{
			Task:             task,
			WorkingDirectory: req.GetString("working_directory", ""),
			BranchName:       req.GetString("branch_name", ""),
			UseWorktree:      &useWorktree,
			Model:            req.GetString("model", ""),
			AgentType:        req.GetString("agent_type", ""),
		})
		if err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("spawned worker " + id), nil
	})
}

func addListWorkers(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("list_workers",
		mcp.WithDescription("List this conductor's workers with status, task, and branch."),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workers, err := client.ListWorkers(ctx, "")
		if err != nil {
			return errResult(err), nil
		}
		return textResult(workers), nil
	})
}

func addGetWorkerOutput(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("get_worker_output",
		mcp.WithDescription("Read the last lines of a worker's terminal output."),
		mcp.WithString("worker_id", mcp.Required()),
		mcp.WithNumber("lines", mcp.Description("How many trailing lines (default 50)")),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return errResult(err), nil
		}
		lines, err := client.GetWorkerOutput(ctx, workerID, req.GetInt("lines", 50))
		if err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	})
}

func addSendToWorker(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("send_to_worker",
		mcp.WithDescription("Send a message line to a worker's terminal."),
		mcp.WithString("worker_id", mcp.Required()),
		mcp.WithString("message", mcp.Required()),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return errResult(err), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return errResult(err), nil
		}
		if err := client.SendToWorker(ctx, workerID, message); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("sent"), nil
	})
}

func addWorkerTransition(s *mcpserver.MCPServer, client *orchestrator.Client,
	name, desc string, fn func(context.Context, string) error) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(desc),
		mcp.WithString("worker_id", mcp.Required()),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return errResult(err), nil
		}
		if err := fn(ctx, workerID); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	})
}

func addKillWorker(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("kill_worker",
		mcp.WithDescription("Terminate a worker's pane and delete its session record."),
		mcp.WithString("worker_id", mcp.Required()),
		mcp.WithBoolean("cleanup_worktree", mcp.Description("Also delete the worker's branch (default false); the worktree is removed either way")),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workerID, err := req.RequireString("worker_id")
		if err != nil {
			return errResult(err), nil
		}
		if err := client.KillWorker(ctx, workerID, req.GetBool("cleanup_worktree", false)); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("killed"), nil
	})
}

func addWorkersSummary(s *mcpserver.MCPServer, client *orchestrator.Client) {
	tool := mcp.NewTool("get_workers_summary",
		mcp.WithDescription("Count this conductor's workers by status."),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum, err := client.GetWorkersSummary(ctx, "")
		if err != nil {
			return errResult(err), nil
		}
		return textResult(sum), nil
	})
}
