package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/raayon/raayon/internal/storage"
)

// MCPDeps holds dependencies for the operator MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer exposes the interview catalog and reports as MCP tools so an
// operator's agent can inspect interviews without the HTTP admin API.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"raayon",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("raayon — guided management-style interviews. Tools list interviews, fetch per-interview reports, and show the topic catalog."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_interviews",
			mcp.WithDescription("List all interviews with status and progress counters."),
		),
		mcpListInterviews(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_report",
			mcp.WithDescription("Full report for one interview: session, topic states, and collected answers."),
			mcp.WithString("id", mcp.Description("Interview ID"), mcp.Required()),
		),
		mcpInterviewReport(deps),
	)

	s.AddTool(
		mcp.NewTool("list_topics",
			mcp.WithDescription("List the interview topic catalog with default question counts."),
		),
		mcpListTopics(deps),
	)

	return s
}

func mcpListInterviews(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		interviews, err := deps.Store.ListInterviews()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list interviews: %v", err)), nil
		}

		type interviewRow struct {
			ID          string `json:"id"`
			ManagerName string `json:"manager_name"`
			Status      string `json:"status"`
			Answered    int    `json:"answered"`
			Skipped     int    `json:"skipped"`
			CreatedAt   string `json:"created_at"`
		}

		rows := make([]interviewRow, 0, len(interviews))
		for _, iv := range interviews {
			row := interviewRow{
				ID:          iv.ID,
				ManagerName: iv.ManagerName,
				Status:      iv.Status,
				CreatedAt:   iv.CreatedAt.UTC().Format(time.RFC3339),
			}
			if sess, err := deps.Store.GetSession(iv.ID); err == nil {
				row.Answered = sess.AnsweredCount
				row.Skipped = sess.SkippedCount
			}
			rows = append(rows, row)
		}

		b, err := json.Marshal(rows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal interviews: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpInterviewReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		iv, err := deps.Store.GetInterview(id)
		if err != nil {
			return mcpError(fmt.Sprintf("interview not found: %v", err)), nil
		}
		sess, err := deps.Store.GetSession(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load session: %v", err)), nil
		}
		states, err := deps.Store.ListTopicStates(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load topic states: %v", err)), nil
		}
		answers, err := deps.Store.ListAnswers(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load answers: %v", err)), nil
		}

		type answerRow struct {
			Topic    int    `json:"topic"`
			Question string `json:"question"`
			Answer   string `json:"answer,omitempty"`
			Skipped  bool   `json:"skipped,omitempty"`
		}
		type stateRow struct {
			Topic         int      `json:"topic"`
			Confidence    float64  `json:"confidence"`
			CoveredPoints []string `json:"covered_points,omitempty"`
		}
		report := struct {
			ID             string      `json:"id"`
			ManagerName    string      `json:"manager_name"`
			ManagerRole    string      `json:"manager_role,omitempty"`
			Status         string      `json:"status"`
			SelectedTopics []int       `json:"selected_topics"`
			Answered       int         `json:"answered"`
			Skipped        int         `json:"skipped"`
			TopicStates    []stateRow  `json:"topic_states"`
			Answers        []answerRow `json:"answers"`
		}{
			ID:             iv.ID,
			ManagerName:    iv.ManagerName,
			ManagerRole:    iv.ManagerRole,
			Status:         iv.Status,
			SelectedTopics: iv.SelectedTopics,
			Answered:       sess.AnsweredCount,
			Skipped:        sess.SkippedCount,
			TopicStates:    make([]stateRow, 0, len(states)),
			Answers:        make([]answerRow, 0, len(answers)),
		}
		for _, ts := range states {
			report.TopicStates = append(report.TopicStates, stateRow{
				Topic:         ts.TopicNumber,
				Confidence:    ts.Confidence,
				CoveredPoints: ts.CoveredPoints,
			})
		}
		for _, a := range answers {
			report.Answers = append(report.Answers, answerRow{
				Topic:    a.TopicNumber,
				Question: a.QuestionText,
				Answer:   a.AnswerText,
				Skipped:  a.Skipped,
			})
		}

		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListTopics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topics, err := deps.Store.ListTopics()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list topics: %v", err)), nil
		}

		type topicRow struct {
			Number           int    `json:"number"`
			Label            string `json:"label"`
			Description      string `json:"description,omitempty"`
			DefaultQuestions int    `json:"default_questions"`
		}
		rows := make([]topicRow, 0, len(topics))
		for _, t := range topics {
			row := topicRow{Number: t.Number, Label: t.Label, Description: t.Description}
			if qs, err := deps.Store.ListDefaultQuestions(t.Number); err == nil {
				row.DefaultQuestions = len(qs)
			}
			rows = append(rows, row)
		}

		b, err := json.Marshal(rows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal topics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
