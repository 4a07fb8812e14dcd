package main

import (
	"fmt"

	"deepvision/internal/types"

	"github.com/spf13/cobra"
)

var statsLastN int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show LLM call statistics and tuning recommendations",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		stats := a.collector.Statistics(statsLastN)
		if jsonOutput {
			return printJSON(stats)
		}
		if stats.Message != "" {
			fmt.Println(stats.Message)
			return nil
		}

		fmt.Printf("统计范围: %s\n", stats.Period)
		fmt.Printf("调用总数: %d（成功 %d，失败 %d，超时 %d）\n",
			stats.TotalCalls, stats.SuccessfulCalls, stats.FailedCalls, stats.TimeoutCalls)
		fmt.Printf("超时率:   %.2f%%    截断率: %.2f%%\n", stats.TimeoutRate, stats.TruncationRate)
		fmt.Printf("响应耗时: 平均 %.0fms，最大 %.0fms，最小 %.0fms\n",
			stats.AvgResponseTimeMs, stats.MaxResponseTimeMs, stats.MinResponseTimeMs)
		fmt.Printf("提示长度: 平均 %.0f，最大 %d\n", stats.AvgPromptLength, stats.MaxPromptLength)

		if len(stats.Recommendations) > 0 {
			fmt.Println("\n优化建议:")
			for _, rec := range stats.Recommendations {
				fmt.Printf("  [%s] %s\n", rec.Level, rec.Message)
			}
		}
		return nil
	}),
}

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Manage the document summary cache",
}

var summariesInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show summary cache size",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		count, totalBytes, err := a.store.SummaryInfo()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]interface{}{"count": count, "total_bytes": totalBytes})
		}
		fmt.Printf("摘要缓存: %d 条，共 %d 字节\n", count, totalBytes)
		return nil
	}),
}

var summariesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the summary cache",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		deleted, err := a.store.ClearSummaries()
		if err != nil {
			return err
		}
		fmt.Printf("已清除 %d 条摘要缓存\n", deleted)
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show assistant status",
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		listings, err := a.manager.List()
		if err != nil {
			return err
		}
		reports, err := a.reports.List()
		if err != nil {
			return err
		}

		counts := map[string]int{}
		for _, l := range listings {
			counts[l.Status]++
		}

		llmState := "未配置（使用内置问题库）"
		if a.client != nil {
			llmState = fmt.Sprintf("%s / %s", a.cfg.LLM.Provider, a.cfg.LLM.Model)
		}
		searchState := "关闭"
		if a.cfg.Search.Enabled && a.cfg.Search.APIKey != "" {
			searchState = "开启"
		}

		fmt.Printf("Deep Vision %s\n", a.cfg.Version)
		fmt.Printf("LLM:      %s\n", llmState)
		fmt.Printf("联网搜索: %s\n", searchState)
		fmt.Printf("存储后端: %s (%s)\n", a.cfg.Storage.Backend, a.cfg.Storage.DataDir)
		fmt.Printf("会话:     %d 个（进行中 %d，已暂停 %d，已完成 %d）\n",
			len(listings), counts[types.StatusInProgress], counts[types.StatusPaused], counts[types.StatusCompleted])
		fmt.Printf("报告:     %d 份\n", len(reports))
		return nil
	}),
}

func init() {
	statsCmd.Flags().IntVar(&statsLastN, "last", 0, "Only consider the last N calls (0 = all)")

	summariesCmd.AddCommand(summariesInfoCmd)
	summariesCmd.AddCommand(summariesClearCmd)

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(summariesCmd)
	rootCmd.AddCommand(statusCmd)
}
