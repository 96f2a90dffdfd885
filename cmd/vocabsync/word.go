package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/vocab"
)

var wordCmd = &cobra.Command{
	Use:   "word",
	Short: "Manage vocabulary words",
}

var wordAddCmd = &cobra.Command{
	Use:   "add <headword>",
	Short: "Add a word",
	Example: `  vocabsync word add apple --meaning "a round fruit" --pos noun --tag food
  vocabsync word add run -m "move fast" --example "I run every day|毎日走る"`,
	Args: cobra.ExactArgs(1),
	RunE: runWordAdd,
}

var wordListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List words",
	RunE:    runWordList,
}

var wordShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a word and its review state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWordShow,
}

var wordEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a word",
	Long:  `Only the flags given are changed; other fields keep their values.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWordEdit,
}

var wordRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a word and its review state",
	Args:    cobra.ExactArgs(1),
	RunE:    runWordRm,
}

var (
	wordMeaning  string
	wordPos      string
	wordPron     string
	wordMemo     string
	wordTags     []string
	wordExamples []string

	listQuery  string
	listTags   []string
	listPos    string
	listSort   string
	listDesc   bool
	listLimit  int
	listOffset int
)

func init() {
	rootCmd.AddCommand(wordCmd)
	wordCmd.AddCommand(wordAddCmd, wordListCmd, wordShowCmd, wordEditCmd, wordRmCmd)

	for _, c := range []*cobra.Command{wordAddCmd, wordEditCmd} {
		c.Flags().StringVarP(&wordMeaning, "meaning", "m", "", "Meaning")
		c.Flags().StringVarP(&wordPos, "pos", "p", "", "Part of speech (noun, verb, adj, ...)")
		c.Flags().StringVar(&wordPron, "pron", "", "Pronunciation")
		c.Flags().StringVar(&wordMemo, "memo", "", "Free-form note")
		c.Flags().StringSliceVarP(&wordTags, "tag", "t", nil, "Tag (repeatable)")
		c.Flags().StringArrayVarP(&wordExamples, "example", "x", nil,
			`Example sentence, optionally "text|translation" (repeatable)`)
	}
	_ = wordAddCmd.MarkFlagRequired("meaning")

	wordListCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Match headword or meaning")
	wordListCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "Only words with any of these tags")
	wordListCmd.Flags().StringVarP(&listPos, "pos", "p", "", "Only this part of speech")
	wordListCmd.Flags().StringVar(&listSort, "sort", vocab.SortHeadword, "Sort by headword, createdAt or updatedAt")
	wordListCmd.Flags().BoolVar(&listDesc, "desc", false, "Sort descending")
	wordListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum words to show (0 = all)")
	wordListCmd.Flags().IntVar(&listOffset, "offset", 0, "Words to skip")
}

func parseExamples(raw []string) []models.ExampleSentence {
	out := make([]models.ExampleSentence, 0, len(raw))
	for _, r := range raw {
		text, translation, _ := strings.Cut(r, "|")
		out = append(out, models.ExampleSentence{
			Text:        strings.TrimSpace(text),
			Translation: strings.TrimSpace(translation),
		})
	}
	return out
}

func runWordAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	word, err := c.Repo.CreateWord(ctx, models.WordInput{
		Headword:      args[0],
		Pronunciation: wordPron,
		PartOfSpeech:  models.PartOfSpeech(wordPos),
		Meaning:       wordMeaning,
		Examples:      parseExamples(wordExamples),
		Tags:          wordTags,
		Memo:          wordMemo,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(word)
		return nil
	}
	printSuccess("Added %s (%s)", word.Headword, word.ID)
	return nil
}

func runWordList(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd.Context())
	if err != nil {
		return err
	}

	result, err := c.Repo.ListWords(vocab.ListOptions{
		Query:        listQuery,
		Tags:         listTags,
		PartOfSpeech: models.PartOfSpeech(listPos),
		SortBy:       listSort,
		Desc:         listDesc,
		Offset:       listOffset,
		Limit:        listLimit,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}

	if len(result.Words) == 0 {
		printInfo("No words")
		return nil
	}
	for _, w := range result.Words {
		mem := result.Memory[w.ID]
		fmt.Printf("%-28s %-20s %-6s %s\n", w.ID, w.Headword, w.PartOfSpeech, w.Meaning)
		dimColor.Printf("%-28s level %d, due %s\n", "", mem.MemoryLevel, mem.DueAt.Local().Format(time.DateTime))
	}
	dimColor.Printf("%d of %d words\n", len(result.Words), result.Total)
	return nil
}

func runWordShow(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd.Context())
	if err != nil {
		return err
	}

	word, err := c.Repo.GetWord(args[0])
	if err != nil {
		return err
	}
	mem := c.Repo.Memory(word.ID)

	if jsonOutput {
		printJSON(vocab.Card{Word: *word, Memory: mem})
		return nil
	}

	printInfo("%s", word.Headword)
	if word.Pronunciation != "" {
		fmt.Printf("  /%s/\n", word.Pronunciation)
	}
	fmt.Printf("  %s  %s\n", word.PartOfSpeech, word.Meaning)
	for _, ex := range word.Examples {
		fmt.Printf("  - %s\n", ex.Text)
		if ex.Translation != "" {
			dimColor.Printf("    %s\n", ex.Translation)
		}
	}
	if len(word.Tags) > 0 {
		fmt.Printf("  tags: %s\n", strings.Join(word.Tags, ", "))
	}
	if word.Memo != "" {
		fmt.Printf("  memo: %s\n", word.Memo)
	}
	dimColor.Printf("  level %d, ease %.2f, interval %dd, reviews %d, lapses %d, due %s\n",
		mem.MemoryLevel, mem.Ease, mem.IntervalDays, mem.ReviewCount, mem.LapseCount,
		mem.DueAt.Local().Format(time.DateTime))
	return nil
}

func runWordEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	current, err := c.Repo.GetWord(args[0])
	if err != nil {
		return err
	}

	in := models.WordInput{
		Headword:      current.Headword,
		Pronunciation: current.Pronunciation,
		PartOfSpeech:  current.PartOfSpeech,
		Meaning:       current.Meaning,
		Examples:      current.Examples,
		Tags:          current.Tags,
		Memo:          current.Memo,
	}
	flags := cmd.Flags()
	if flags.Changed("meaning") {
		in.Meaning = wordMeaning
	}
	if flags.Changed("pos") {
		in.PartOfSpeech = models.PartOfSpeech(wordPos)
	}
	if flags.Changed("pron") {
		in.Pronunciation = wordPron
	}
	if flags.Changed("memo") {
		in.Memo = wordMemo
	}
	if flags.Changed("tag") {
		in.Tags = wordTags
	}
	if flags.Changed("example") {
		in.Examples = parseExamples(wordExamples)
	}

	word, err := c.Repo.UpdateWord(ctx, current.ID, in)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(word)
		return nil
	}
	printSuccess("Updated %s", word.Headword)
	return nil
}

func runWordRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	if err := c.Repo.DeleteWord(ctx, args[0]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"deleted": args[0]})
		return nil
	}
	printSuccess("Deleted %s", args[0])
	return nil
}
