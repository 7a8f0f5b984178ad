package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/bootstrap"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// openRuntime builds an offline NLU runtime: no cache, audit log or events.
// Verbose runs record model calls for printModelStats.
func openRuntime(ctx context.Context, cliCtx *CLIContext, rulesOnly bool) (*bootstrap.Runtime, error) {
	opts := bootstrap.Options{RulesOnly: rulesOnly, Offline: true}
	if cliCtx.Verbose {
		cliCtx.ModelStats = common.NewInMemoryModelMetrics()
		opts.ModelMetrics = cliCtx.ModelStats
	}
	return bootstrap.Build(ctx, cliCtx.Config, cliCtx.Logger, opts)
}

// printModelStats writes the model call summary of a verbose run to stderr.
func printModelStats(cmd *cobra.Command, cliCtx *CLIContext) {
	if cliCtx.ModelStats == nil {
		return
	}
	s := cliCtx.ModelStats.GetCurrentStats()
	w := cmd.ErrOrStderr()
	if s.TotalInferences == 0 {
		fmt.Fprintln(w, color.HiBlackString("model: no inferences (rules only)"))
		return
	}
	fmt.Fprintln(w, color.HiBlackString("model: %d inferences, %d failed, p50 %.1fms p95 %.1fms, loaded [%s]",
		s.TotalInferences, s.FailedInferences, s.P50LatencyMs, s.P95LatencyMs, strings.Join(s.LoadedModels, " ")))
}

// readTexts returns args joined as one text, or stdin lines when args is
// empty or "-". With perLine every non-blank stdin line is its own text.
func readTexts(in io.Reader, args []string, perLine bool) ([]string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return []string{strings.Join(args, " ")}, nil
	}
	if perLine {
		var texts []string
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(texts) == 0 {
			return nil, errors.New(errors.ErrCodeValidation, "no input text")
		}
		return texts, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.New(errors.ErrCodeValidation, "no input text")
	}
	return []string{text}, nil
}

// ---------------------------------------------------------------------------
// extract
// ---------------------------------------------------------------------------

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	var rulesOnly, perLine bool

	cmd := &cobra.Command{
		Use:   "extract [text]",
		Short: "Extract agricultural entities from text or stdin",
		Long: "Run the NER pipeline on the given text. Without arguments the text is\n" +
			"read from stdin; --lines treats every stdin line as a separate text.",
		Example: `  agrinlu extract "Lúa bị đạo ôn, phun Beam 75WP sau 3 ngày"
  cat messages.txt | agrinlu extract --lines -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			texts, err := readTexts(cmd.InOrStdin(), args, perLine)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			rt, err := openRuntime(ctx, cliCtx, rulesOnly)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := extractChunked(ctx, rt.Service, texts, cliCtx.Config.NLU.MaxBatchSize)
			if err != nil {
				cliCtx.Logger.Error("Extraction failed", logging.Err(err))
				return err
			}
			if len(results) == 1 {
				err = PrintResult(cmd, extractionOutput{results[0]})
			} else {
				err = PrintResult(cmd, batchOutput(results))
			}
			printModelStats(cmd, cliCtx)
			return err
		},
	}
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip the model and run the rule matcher only")
	cmd.Flags().BoolVar(&perLine, "lines", false, "treat every stdin line as a separate text")
	return cmd
}

// extractChunked runs texts through ExtractBatch in slices of at most size.
func extractChunked(ctx context.Context, svc nlu.Service, texts []string, size int) ([]*agri_extractor.ExtractionResult, error) {
	if size <= 0 {
		size = nlu.DefaultMaxBatchSize
	}
	results := make([]*agri_extractor.ExtractionResult, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := svc.ExtractBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

type extractionOutput struct {
	*agri_extractor.ExtractionResult
}

func (o extractionOutput) TableHeaders() []string {
	return []string{"Type", "Value", "Raw", "Span", "Confidence", "Source"}
}

func (o extractionOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Entities))
	for _, e := range o.Entities {
		rows = append(rows, entityRow(e))
	}
	return rows
}

func (o extractionOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d entities (%s, %dms)\n", color.CyanString("▸"), o.EntityCount, o.DecodePath, o.ProcessingTimeMs)
	if o.ModelDegraded {
		sb.WriteString(color.YellowString("  model unavailable, rule matches only\n"))
	}
	for _, e := range o.Entities {
		fmt.Fprintf(&sb, "  %-18s %-30s [%d:%d] %s\n",
			color.GreenString(e.Type), e.Value, e.Start, e.End, confidenceString(e.Confidence))
	}
	return strings.TrimRight(sb.String(), "\n")
}

type batchOutput []*agri_extractor.ExtractionResult

func (b batchOutput) TableHeaders() []string {
	return []string{"#", "Type", "Value", "Raw", "Span", "Confidence", "Source"}
}

func (b batchOutput) TableRows() [][]string {
	var rows [][]string
	for i, r := range b {
		for _, e := range r.Entities {
			rows = append(rows, append([]string{strconv.Itoa(i + 1)}, entityRow(e)...))
		}
	}
	return rows
}

func (b batchOutput) String() string {
	parts := make([]string, len(b))
	for i, r := range b {
		parts[i] = fmt.Sprintf("#%d %s", i+1, extractionOutput{r}.String())
	}
	return strings.Join(parts, "\n")
}

func entityRow(e *agri_extractor.EntitySpan) []string {
	return []string{
		e.Type,
		truncateString(e.Value, 40),
		truncateString(e.Raw, 40),
		fmt.Sprintf("%d-%d", e.Start, e.End),
		confidenceString(e.Confidence),
		e.Source,
	}
}

func confidenceString(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	switch {
	case c >= 0.85:
		return color.GreenString(s)
	case c >= 0.6:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

// NewAnalyzeCmd creates the analyze command: intent plus entities.
func NewAnalyzeCmd() *cobra.Command {
	var rulesOnly bool
	var topK int

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Classify intent and extract entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			texts, err := readTexts(cmd.InOrStdin(), args, false)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			rt, err := openRuntime(ctx, cliCtx, rulesOnly)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Service.Analyze(ctx, texts[0], topK)
			if err != nil {
				return err
			}
			err = PrintResult(cmd, analysisOutput{res})
			printModelStats(cmd, cliCtx)
			return err
		},
	}
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip the models; intents come from keywords")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of ranked intents (0: configured default)")
	return cmd
}

type analysisOutput struct {
	*nlu.AnalysisResult
}

func (o analysisOutput) TableHeaders() []string {
	return []string{"Type", "Value", "Raw", "Span", "Confidence", "Source"}
}

func (o analysisOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Entities))
	for _, e := range o.Entities {
		rows = append(rows, entityRow(e))
	}
	return rows
}

func (o analysisOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s intent %s %s\n", color.CyanString("▸"), color.GreenString(o.Intent), confidenceString(o.IntentConfidence))
	for _, s := range o.AllIntents {
		fmt.Fprintf(&sb, "    %-18s %.2f\n", s.Intent, s.Confidence)
	}
	fmt.Fprintf(&sb, "%s %d entities (%s)\n", color.CyanString("▸"), o.EntityCount, o.DecodePath)
	for _, e := range o.Entities {
		fmt.Fprintf(&sb, "  %-18s %-30s [%d:%d] %s\n",
			color.GreenString(e.Type), e.Value, e.Start, e.End, confidenceString(e.Confidence))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ---------------------------------------------------------------------------
// labels / rules
// ---------------------------------------------------------------------------

// NewLabelsCmd prints the active label vocabulary.
func NewLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Show the BIO label vocabulary and entity type map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			rt, err := openRuntime(ctx, cliCtx, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return PrintResult(cmd, labelsOutput{rt.Service.Labels()})
		},
	}
}

type labelsOutput struct {
	*nlu.LabelsInfo
}

func (o labelsOutput) TableHeaders() []string { return []string{"ID", "Label", "Entity type"} }

func (o labelsOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Labels))
	for i, l := range o.Labels {
		rows[i] = []string{strconv.Itoa(i), l, o.displayType(l)}
	}
	return rows
}

func (o labelsOutput) displayType(label string) string {
	if label == "O" {
		return ""
	}
	if _, suffix, ok := strings.Cut(label, "-"); ok {
		return o.TypeMap[suffix]
	}
	return ""
}

func (o labelsOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d labels, fingerprint %s\n", len(o.Labels), o.Fingerprint)
	suffixes := make([]string, 0, len(o.TypeMap))
	for k := range o.TypeMap {
		suffixes = append(suffixes, k)
	}
	sort.Strings(suffixes)
	for _, k := range suffixes {
		fmt.Fprintf(&sb, "  %-12s → %s\n", k, o.TypeMap[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NewRulesCmd prints the rule table used by the rule matcher.
func NewRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the rule patterns merged with model spans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			rt, err := openRuntime(ctx, cliCtx, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return PrintResult(cmd, rulesOutput(rt.Service.Rules()))
		},
	}
}

type rulesOutput []agri_extractor.RuleSpec

func (o rulesOutput) TableHeaders() []string {
	return []string{"Name", "Type", "Confidence", "Bounded", "Pattern"}
}

func (o rulesOutput) TableRows() [][]string {
	rows := make([][]string, len(o))
	for i, r := range o {
		rows[i] = []string{r.Name, r.Type, fmt.Sprintf("%.2f", r.Confidence), strconv.FormatBool(r.WordBounded), truncateString(r.Pattern, 60)}
	}
	return rows
}

func (o rulesOutput) String() string {
	var sb strings.Builder
	for _, r := range o {
		fmt.Fprintf(&sb, "%-24s %-14s %.2f\n", r.Name, r.Type, r.Confidence)
	}
	return strings.TrimRight(sb.String(), "\n")
}

//Personal.AI order the ending
