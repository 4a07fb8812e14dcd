package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"deepvision/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage interview sessions",
}

var (
	sessionTopic       string
	sessionDescription string
	cleanupDays        int
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new interview session",
	Example: `  deepvision session create --topic "智慧园区管理平台"
  deepvision session create --topic "CRM 系统" --description "面向中小企业的客户管理"`,
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, err := a.manager.Create(sessionTopic, sessionDescription)
		if err != nil {
			return err
		}
		logger.Info("session created", zap.String("id", session.SessionID), zap.String("topic", session.Topic))
		if jsonOutput {
			return printJSON(session)
		}
		fmt.Printf("已创建调研会话 %s\n主题: %s\n", session.SessionID, session.Topic)
		return nil
	}),
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions, newest first",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		listings, err := a.manager.List()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(listings)
		}
		if len(listings) == 0 {
			fmt.Println("暂无调研会话")
			return nil
		}
		for _, l := range listings {
			fmt.Printf("%s  [%s]  %s  (%d 条问答, 更新于 %s)\n",
				l.SessionID, statusLabel(l.Status), l.Topic, l.InterviewCount, l.UpdatedAt)
		}
		return nil
	}),
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show full session state",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, err := a.manager.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(session)
		}
		printSession(session)
		return nil
	}),
}

var sessionUpdateCmd = &cobra.Command{
	Use:   "update [session-id]",
	Short: "Update a session's topic or description",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, err := a.manager.Update(args[0], sessionTopic, sessionDescription, "")
		if err != nil {
			return err
		}
		fmt.Printf("已更新会话 %s\n", session.SessionID)
		return nil
	}),
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session permanently",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		if err := a.manager.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("已删除会话 %s\n", args[0])
		return nil
	}),
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed sessions older than a cutoff",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		listings, err := a.manager.List()
		if err != nil {
			return err
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -cleanupDays)
		deleted := 0
		for _, l := range listings {
			if l.Status != types.StatusCompleted {
				continue
			}
			updated, err := time.Parse(time.RFC3339, l.UpdatedAt)
			if err != nil || !updated.Before(cutoff) {
				continue
			}
			if err := a.manager.Delete(l.SessionID); err != nil {
				fmt.Fprintf(os.Stderr, "删除 %s 失败: %v\n", l.SessionID, err)
				continue
			}
			deleted++
		}
		fmt.Printf("已清理 %d 个已完成会话（%d 天前）\n", deleted, cleanupDays)
		return nil
	}),
}

func statusCommand(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [session-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			session, err := a.manager.SetStatus(args[0], status)
			if err != nil {
				return err
			}
			fmt.Printf("会话 %s 状态: %s\n", session.SessionID, statusLabel(session.Status))
			return nil
		}),
	}
}

func printSession(s *types.Session) {
	fmt.Printf("会话:   %s\n主题:   %s\n状态:   %s\n创建:   %s\n更新:   %s\n",
		s.SessionID, s.Topic, statusLabel(s.Status), s.CreatedAt, s.UpdatedAt)
	if s.Description != "" {
		fmt.Printf("描述:   %s\n", s.Description)
	}

	fmt.Println("\n维度进度:")
	for _, dim := range types.DimensionOrder {
		state := s.Dimensions[dim]
		coverage := 0
		items := 0
		if state != nil {
			coverage = state.Coverage
			items = len(state.Items)
		}
		fmt.Printf("  %-6s %3d%%  (%d 项, %d 条正式回答)\n",
			types.DimensionName(dim), coverage, items, s.FormalCount(dim))
	}

	fmt.Printf("\n问答记录: %d 条\n", len(s.InterviewLog))
	if len(s.ReferenceDocs) > 0 {
		fmt.Printf("参考文档: %d 个\n", len(s.ReferenceDocs))
	}
	if len(s.ResearchDocs) > 0 {
		fmt.Printf("调研成果: %d 个\n", len(s.ResearchDocs))
	}
}

func statusLabel(status string) string {
	switch status {
	case types.StatusInProgress:
		return "进行中"
	case types.StatusPaused:
		return "已暂停"
	case types.StatusCompleted:
		return "已完成"
	}
	return status
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionTopic, "topic", "", "Interview topic (required)")
	sessionCreateCmd.Flags().StringVar(&sessionDescription, "description", "", "Topic description")
	sessionCreateCmd.MarkFlagRequired("topic")

	sessionUpdateCmd.Flags().StringVar(&sessionTopic, "topic", "", "New topic")
	sessionUpdateCmd.Flags().StringVar(&sessionDescription, "description", "", "New description")

	sessionCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete completed sessions not updated for this many days")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionUpdateCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionCmd.AddCommand(statusCommand("pause", "Pause an in-progress session", types.StatusPaused))
	sessionCmd.AddCommand(statusCommand("resume", "Resume a paused session", types.StatusInProgress))
	sessionCmd.AddCommand(statusCommand("complete", "Mark a session completed", types.StatusCompleted))

	rootCmd.AddCommand(sessionCmd)
}
