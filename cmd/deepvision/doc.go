package main

import (
	"context"
	"fmt"

	"deepvision/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var docResearch bool

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage session documents",
	Long: `Attaches reference documents (or prior research results with
--research) to a session so question generation and reports can draw on
them. Markdown and text files are read directly, office documents run
through the configured converter, PDFs are recorded by name only.`,
}

var docAddCmd = &cobra.Command{
	Use:   "add [session-id] [file...]",
	Short: "Ingest files and attach them to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		ctx := context.Background()

		for _, path := range args[1:] {
			doc, err := a.converter.Ingest(ctx, path)
			if err != nil {
				fmt.Printf("跳过 %s: %v\n", path, err)
				continue
			}

			var session *types.Session
			if docResearch {
				session, err = a.manager.AddResearchDoc(sessionID, doc)
			} else {
				session, err = a.manager.AddReferenceDoc(sessionID, doc)
			}
			if err != nil {
				return err
			}
			logger.Debug("document attached",
				zap.String("session", session.SessionID),
				zap.String("name", doc.Name),
				zap.Int("content_runes", len([]rune(doc.Content))))
			fmt.Printf("已添加 %s（%d 字符）\n", doc.Name, len([]rune(doc.Content)))
		}
		return nil
	}),
}

var docRemoveCmd = &cobra.Command{
	Use:   "remove [session-id] [doc-name]",
	Short: "Detach a document from a session",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		var err error
		if docResearch {
			_, err = a.manager.RemoveResearchDoc(args[0], args[1])
		} else {
			_, err = a.manager.RemoveReferenceDoc(args[0], args[1])
		}
		if err != nil {
			return err
		}
		fmt.Printf("已移除 %s\n", args[1])
		return nil
	}),
}

var docListCmd = &cobra.Command{
	Use:   "list [session-id]",
	Short: "List a session's documents",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
		session, err := a.manager.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]interface{}{
				"reference_docs": session.ReferenceDocs,
				"research_docs":  session.ResearchDocs,
			})
		}
		printDocs("参考文档", session.ReferenceDocs)
		printDocs("调研成果", session.ResearchDocs)
		return nil
	}),
}

func printDocs(label string, docs []types.Document) {
	if len(docs) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, doc := range docs {
		fmt.Printf("  %s  (%s, %d 字符, 上传于 %s)\n",
			doc.Name, doc.Type, len([]rune(doc.Content)), doc.UploadedAt)
	}
}

func init() {
	docCmd.PersistentFlags().BoolVar(&docResearch, "research", false, "Operate on research docs instead of reference docs")

	docCmd.AddCommand(docAddCmd)
	docCmd.AddCommand(docRemoveCmd)
	docCmd.AddCommand(docListCmd)

	rootCmd.AddCommand(docCmd)
}
