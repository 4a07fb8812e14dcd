package main

import (
	"context"
	"fmt"
	"strings"

	"deepvision/internal/interview"
	"deepvision/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askDimension     string
	answerQuestion   string
	answerText       string
	answerOptions    []string
	answerIsFollowUp bool
)

var askCmd = &cobra.Command{
	Use:   "ask [session-id]",
	Short: "Generate the next interview question for a dimension",
	Long: `Generates the next question for the given dimension. With an API key
configured the question comes from the model, grounded in uploaded
documents, interview history, and (when enabled) web search results.
Without one, a built-in question bank is used.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		q, err := a.engine.NextQuestion(ctx, args[0], askDimension)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(q)
		}
		if q.Completed {
			fmt.Printf("「%s」维度已收集足够信息，可切换到其他维度或生成报告。\n", types.DimensionName(askDimension))
			return nil
		}
		printQuestion(q)
		return nil
	}),
}

var answerCmd = &cobra.Command{
	Use:   "answer [session-id]",
	Short: "Record an answer to the current question",
	Example: `  deepvision answer dv-20260831120000-a1b2c3d4 \
    --dimension customer_needs \
    --question "核心痛点是什么？" \
    --text "巡检依赖纸质记录，效率低且无法追溯"`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, eval, err := a.manager.SubmitAnswer(args[0], interview.Answer{
			Question:   answerQuestion,
			Answer:     answerText,
			Dimension:  askDimension,
			Options:    answerOptions,
			IsFollowUp: answerIsFollowUp,
		})
		if err != nil {
			return err
		}
		logger.Debug("answer recorded",
			zap.String("session", session.SessionID),
			zap.Bool("needs_follow_up", eval.NeedsFollowUp),
			zap.Strings("signals", eval.Signals))

		if jsonOutput {
			return printJSON(map[string]interface{}{
				"session_id":      session.SessionID,
				"needs_follow_up": eval.NeedsFollowUp,
				"reason":          eval.Reason,
				"signals":         eval.Signals,
			})
		}
		fmt.Printf("已记录回答（第 %d 条）\n", len(session.InterviewLog))
		if eval.NeedsFollowUp {
			fmt.Printf("提示: 下一个问题将是追问 - %s\n", eval.Reason)
		}
		return nil
	}),
}

var undoCmd = &cobra.Command{
	Use:   "undo [session-id]",
	Short: "Remove the most recent answer",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, err := a.manager.UndoAnswer(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("已撤销最近一条回答，剩余 %d 条\n", len(session.InterviewLog))
		return nil
	}),
}

var restartCmd = &cobra.Command{
	Use:   "restart [session-id]",
	Short: "Archive the interview log as a research doc and start over",
	Long: `Snapshots the full interview log into a markdown research document
attached to the session, then clears the log and dimension state so a
fresh interview round can build on the archived findings.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		docName, err := a.manager.RestartResearch(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("已归档调研记录为 %s，会话已重置\n", docName)
		return nil
	}),
}

func printQuestion(q *types.Question) {
	if q.IsFollowUp {
		fmt.Println("[追问]")
	}
	fmt.Println(q.Question)
	for i, opt := range q.Options {
		fmt.Printf("  %d. %s\n", i+1, opt)
	}
	if q.MultiSelect {
		fmt.Println("  (可多选)")
	}
	if q.ConflictDetected && q.ConflictDescription != "" {
		fmt.Printf("⚠️  %s\n", q.ConflictDescription)
	}
}

func dimensionFlagUsage() string {
	return fmt.Sprintf("Dimension (%s)", strings.Join(types.DimensionOrder, ", "))
}

func init() {
	askCmd.Flags().StringVarP(&askDimension, "dimension", "d", types.DimCustomerNeeds, dimensionFlagUsage())

	answerCmd.Flags().StringVarP(&askDimension, "dimension", "d", types.DimCustomerNeeds, dimensionFlagUsage())
	answerCmd.Flags().StringVarP(&answerQuestion, "question", "q", "", "The question being answered (required)")
	answerCmd.Flags().StringVarP(&answerText, "text", "t", "", "Answer text (required)")
	answerCmd.Flags().StringSliceVar(&answerOptions, "options", nil, "Options the question offered")
	answerCmd.Flags().BoolVar(&answerIsFollowUp, "follow-up", false, "Mark this as an answer to a follow-up question")
	answerCmd.MarkFlagRequired("question")
	answerCmd.MarkFlagRequired("text")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(restartCmd)
}
