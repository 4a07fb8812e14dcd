package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and manage requirement reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate [session-id]",
	Short: "Generate the requirements report for a session",
	Long: `Generates a structured requirements report from the interview record.
With an API key the model writes the report (priority matrix, flow
diagrams, risk assessment); otherwise a deterministic report is built
straight from the collected answers. The session is marked completed.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		result, err := a.engine.GenerateReport(context.Background(), args[0])
		if err != nil {
			return err
		}
		logger.Info("report generated",
			zap.String("session", args[0]),
			zap.String("name", result.Name),
			zap.Bool("ai", result.AIGenerated))

		if jsonOutput {
			return printJSON(result)
		}
		kind := "简单报告（未配置 API key）"
		if result.AIGenerated {
			kind = "AI 生成报告"
		}
		fmt.Printf("已生成%s: %s\n", kind, result.Path)
		return nil
	}),
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated reports, newest first",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		infos, err := a.reports.List()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(infos)
		}
		if len(infos) == 0 {
			fmt.Println("暂无报告")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  (%d 字节, %s)\n", info.Name, info.Size, info.CreatedAt)
		}
		return nil
	}),
}

var reportShowCmd = &cobra.Command{
	Use:   "show [report-name]",
	Short: "Print a report to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		content, err := a.reports.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	}),
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete [report-name]",
	Short: "Remove a report from the listing",
	Long: `Removes the report from the listing. The file stays on disk and can
still be shown by name, only the listing hides it.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		if err := a.reports.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("已删除报告 %s\n", args[0])
		return nil
	}),
}

func init() {
	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDeleteCmd)

	rootCmd.AddCommand(reportCmd)
}
