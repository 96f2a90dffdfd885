package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Review due cards",
}

var studyNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next card due for review",
	RunE:  runStudyNext,
}

var studyGradeCmd = &cobra.Command{
	Use:   "grade <id> <again|hard|good|easy>",
	Short: "Record a review result",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudyGrade,
}

var studyResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Forget the review history of a word",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudyReset,
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List all tags in use",
	RunE:  runTags,
}

var studyTags []string

func init() {
	rootCmd.AddCommand(studyCmd, tagsCmd)
	studyCmd.AddCommand(studyNextCmd, studyGradeCmd, studyResetCmd)

	studyNextCmd.Flags().StringSliceVarP(&studyTags, "tag", "t", nil, "Only cards with any of these tags")
}

func runStudyNext(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd.Context())
	if err != nil {
		return err
	}

	card := c.Repo.GetNextDueCard(studyTags)
	if jsonOutput {
		printJSON(map[string]interface{}{"card": card})
		return nil
	}
	if card == nil {
		printInfo("Nothing to review")
		return nil
	}

	printInfo("%s", card.Word.Headword)
	if card.Word.Pronunciation != "" {
		fmt.Printf("  /%s/\n", card.Word.Pronunciation)
	}
	dimColor.Printf("  due %s, id %s\n", card.Memory.DueAt.Local().Format(time.DateTime), card.Word.ID)
	fmt.Printf("  %s\n", card.Word.Meaning)
	return nil
}

func runStudyGrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	rating, err := models.ParseRating(args[1])
	if err != nil {
		return err
	}

	mem, err := c.Repo.GradeCard(ctx, args[0], rating)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(mem)
		return nil
	}
	printSuccess("Next review %s (level %d, interval %dd)",
		mem.DueAt.Local().Format(time.DateTime), mem.MemoryLevel, mem.IntervalDays)
	return nil
}

func runStudyReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	mem, err := c.Repo.ResetMemory(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(mem)
		return nil
	}
	printSuccess("Review history cleared")
	return nil
}

func runTags(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd.Context())
	if err != nil {
		return err
	}

	tags := c.Repo.AllTags()
	if jsonOutput {
		printJSON(tags)
		return nil
	}
	if len(tags) == 0 {
		printInfo("No tags")
		return nil
	}
	fmt.Println(strings.Join(tags, "\n"))
	return nil
}
