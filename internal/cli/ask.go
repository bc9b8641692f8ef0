package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"studyrag/internal/service"
	"studyrag/internal/tui"
)

func newAskCommand(a *app) *cobra.Command {
	var (
		stream bool
		year   string
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tutor, _, closeAll, err := a.tutor(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			req := service.Request{Question: strings.Join(args, " "), CurrentYear: year}
			if !stream {
				ans, err := tutor.Answer(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, ans.Text)
				fmt.Fprintf(a.out, "\n[confidence: %s]\n", ans.Confidence)
				return nil
			}

			tokens := make(chan string, 64)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for tok := range tokens {
					fmt.Fprint(a.out, tok)
				}
			}()
			ans, err := tutor.Stream(ctx, req, tokens)
			close(tokens)
			<-done
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n\n[confidence: %s]\n", ans.Confidence)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", true, "print tokens as they arrive")
	cmd.Flags().StringVar(&year, "year", "", "current year passed to the tutor (default: this year)")
	return cmd
}

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive question console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tutor, labels, closeAll, err := a.tutor(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			header := "Sources: " + strings.Join(labels, ", ")
			if len(labels) == 0 {
				header = "No sources configured; answers use general knowledge."
			}
			_, err = tea.NewProgram(tui.New(ctx, tutor, header), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}
