package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	app "github.com/okian/ivscan/internal/app"
	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/types"
	"github.com/okian/ivscan/internal/selfcheck"
	"github.com/okian/ivscan/pkg/logger"
)

// stdinName selects standard input where a file argument is expected.
const stdinName = "-"

func newEvaluateCmd(c *cli) *cobra.Command {
	var (
		asJSON bool
		top    int
		line   string
	)

	cmd := &cobra.Command{
		Use:   "evaluate [file...]",
		Short: "Evaluate a transcript and print the ranked report",
		Long: `Reads transcript files (or standard input when none or "-" is given),
evaluates every observation line on the worker pool and prints the best
readings ranked by IV percentage. Repeated readings within a file are
evaluated once. Line numbers continue across files, so the LINE column
counts lines as if the files were concatenated.

With --line, a single observation is evaluated and every candidate is printed.`,
		Example: `  adb logcat -d | ivscan evaluate --top 5
  ivscan evaluate --json capture.log
  ivscan evaluate --line "Received values: Id: 24 (Pikachu), CP: 302, Max HP: 55, Dust cost: 1000, Level: 20.5, FastMove Thunder Shock, SpecialMove Wild Charge, Gender 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("top") {
				top = c.cfg.ReportTop
			}

			svc, err := c.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			if line != "" {
				ev, err := svc.Evaluate(ctx, line)
				if err != nil {
					return err
				}
				return printEvaluation(c.out, &ev, asJSON)
			}

			runErr := evaluateFiles(ctx, svc, cmd.InOrStdin(), args)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			if top > 0 {
				rows, err := svc.TopN(ctx, top)
				if err != nil {
					return err
				}
				if err := printReport(c.out, rows, asJSON); err != nil {
					return err
				}
			}

			st := svc.Stats(ctx)
			c.log.Info(ctx, "evaluation summary",
				logger.Int("lines", int(st.Lines)),
				logger.Int("skipped", int(st.Skipped)),
				logger.Int("duplicates", int(st.Duplicates)),
				logger.Int("evaluated", int(st.Evaluated)),
				logger.Int("undetected", int(st.Undetected)),
				logger.Int("no_consistent_ivs", int(st.Empty)),
				logger.Int("failed", int(st.Failed)),
			)

			if runErr != nil {
				return fmt.Errorf("%w: %w", errInterrupted, runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().IntVar(&top, "top", 0, "report rows to print (default report_top)")
	cmd.Flags().StringVar(&line, "line", "", "evaluate one observation line and list its candidates")
	return cmd
}

// evaluateFiles runs each named file through svc; no names means standard input.
// Line numbers continue across inputs as if they were concatenated.
func evaluateFiles(ctx context.Context, svc *app.Service, stdin io.Reader, names []string) error {
	if len(names) == 0 {
		names = []string{stdinName}
	}
	offset := 0
	for _, name := range names {
		n, err := evaluateFile(ctx, svc, stdin, name, offset)
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}

func evaluateFile(ctx context.Context, svc *app.Service, stdin io.Reader, name string, offset int) (int, error) {
	if name == stdinName {
		return svc.RunFrom(ctx, stdin, offset)
	}
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	n, err := svc.RunFrom(ctx, f, offset)
	if err != nil {
		return n, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func printReport(w io.Writer, rows []types.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []types.Entry{}
		}
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tLINE\tSPECIES\tCP\tHP\tLEVEL\tCANDIDATES\tMIN IV\tMAX IV")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s (#%d)\t%d\t%d\t%g\t%d\t%.1f%%\t%.1f%%\n",
			r.Rank, r.Seq, r.Species, r.SpeciesID, r.CP, r.HP, r.Level, r.Candidates, r.MinIV, r.MaxIV)
	}
	return tw.Flush()
}

// evaluationJSON is the --line output.
type evaluationJSON struct {
	ID         string          `json:"id"`
	Outcome    model.Outcome   `json:"outcome"`
	SpeciesID  int             `json:"species_id,omitempty"`
	Species    string          `json:"species,omitempty"`
	CP         int             `json:"cp"`
	HP         int             `json:"hp"`
	Level      float64         `json:"level"`
	Multiplier float64         `json:"multiplier,omitempty"`
	MinIV      float64         `json:"min_iv"`
	MaxIV      float64         `json:"max_iv"`
	Candidates []candidateJSON `json:"candidates"`
}

type candidateJSON struct {
	Attack  int     `json:"attack"`
	Defense int     `json:"defense"`
	Stamina int     `json:"stamina"`
	Percent float64 `json:"percent"`
}

func printEvaluation(w io.Writer, ev *model.Evaluation, asJSON bool) error {
	cands := make([]candidateJSON, len(ev.Candidates))
	for i, cd := range ev.Candidates {
		cands[i] = candidateJSON{Attack: cd.Attack, Defense: cd.Defense, Stamina: cd.Stamina, Percent: cd.Percent()}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(evaluationJSON{
			ID:         ev.ID,
			Outcome:    ev.Outcome,
			SpeciesID:  ev.Species.ID,
			Species:    ev.Species.Name,
			Multiplier: ev.Multiplier,
			MinIV:      ev.Summary.MinIV,
			MaxIV:      ev.Summary.MaxIV,
			CP:         ev.Observation.CombatPower,
			HP:         ev.Observation.HealthPoints,
			Level:      ev.Observation.Level,
			Candidates: cands,
		})
	}

	switch ev.Outcome {
	case model.OutcomeUndetected:
		_, err := fmt.Fprintln(w, "some values were not detected; nothing to evaluate")
		return err
	case model.OutcomeNoConsistentIVs:
		_, err := fmt.Fprintf(w, "%s (#%d) CP %d HP %d level %g: no consistent IVs\n",
			ev.Species.Name, ev.Species.ID, ev.Observation.CombatPower, ev.Observation.HealthPoints, ev.Observation.Level)
		return err
	}

	fmt.Fprintf(w, "%s (#%d) CP %d HP %d level %g: %d candidates, %.1f%% to %.1f%%\n",
		ev.Species.Name, ev.Species.ID, ev.Observation.CombatPower, ev.Observation.HealthPoints,
		ev.Observation.Level, len(ev.Candidates), ev.Summary.MinIV, ev.Summary.MaxIV)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATK\tDEF\tSTA\tIV")
	for _, cd := range cands {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f%%\n", cd.Attack, cd.Defense, cd.Stamina, cd.Percent)
	}
	return tw.Flush()
}

func newDetailCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detail [file]",
		Short: "Read a detail-screen OCR transcript",
		Long: `Reads the OCR text of a creature detail screen (from a file or standard
input), extracts the CP headline, resolves the candy name to a species and
derives the body mass index from the weight and size.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			blob, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			svc, err := c.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			r, err := svc.Inspect(ctx, blob)
			if err != nil {
				return err
			}
			return printDetail(c.out, &r, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == stdinName {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	return string(b), err
}

// detailJSON is the detail output.
type detailJSON struct {
	CP            *int     `json:"cp"`
	CandyName     string   `json:"candy_name,omitempty"`
	SpeciesID     int      `json:"species_id,omitempty"`
	Species       string   `json:"species,omitempty"`
	Distance      *int     `json:"distance,omitempty"`
	Weight        *float64 `json:"weight_kg,omitempty"`
	Size          *float64 `json:"size_m,omitempty"`
	BodyMassIndex *float64 `json:"body_mass_index,omitempty"`
}

func printDetail(w io.Writer, r *app.DetailReport, asJSON bool) error {
	var out detailJSON
	if r.Detail.CP != model.Unknown {
		out.CP = &r.Detail.CP
	}
	out.CandyName = r.Detail.CandyName
	if r.Match != nil {
		out.SpeciesID, out.Species = r.Match.Entry.ID, r.Match.Entry.Name
		out.Distance = &r.Match.Distance
	}
	if m := r.Detail.Measurements; m != nil {
		out.Weight, out.Size = &m.Weight, &m.Size
	}
	if r.HasBodyMassIndex {
		out.BodyMassIndex = &r.BodyMassIndex
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if out.CP != nil {
		fmt.Fprintf(tw, "CP:\t%d\n", *out.CP)
	} else {
		fmt.Fprintln(tw, "CP:\tnot found")
	}
	if r.Match != nil {
		fmt.Fprintf(tw, "Species:\t%s (#%d), candy %q at distance %d\n", out.Species, out.SpeciesID, out.CandyName, *out.Distance)
	} else {
		fmt.Fprintln(tw, "Species:\tno candy label")
	}
	if out.Weight != nil {
		fmt.Fprintf(tw, "Weight:\t%g kg\nSize:\t%g m\n", *out.Weight, *out.Size)
	}
	if out.BodyMassIndex != nil {
		fmt.Fprintf(tw, "BMI:\t%.2f\n", *out.BodyMassIndex)
	}
	return tw.Flush()
}

func newSpeciesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "species [name]",
		Short: "List species or resolve a name to one",
		Long: `Without arguments, lists the reference table in the configured locale.
With a name, prints the closest species and its edit distance.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(args) == 1 {
				svc, err := c.service(ctx)
				if err != nil {
					return err
				}
				defer svc.Stop()

				m, err := svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.out, "%s (#%d) distance %d\n", m.Entry.Name, m.Entry.ID, m.Distance)
				return err
			}

			species, err := c.refs.Species(c.cfg.NameLocale)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tATK\tDEF\tSTA")
			for _, sp := range species {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", sp.ID, sp.Name, sp.BaseAttack, sp.BaseDefense, sp.BaseHealth)
			}
			return tw.Flush()
		},
	}
}

func newSelfcheckCmd(c *cli) *cobra.Command {
	var (
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "selfcheck",
		Short: "Verify inference against generated readings",
		Long: `Generates readings from random species, levels and hidden IVs, evaluates
them concurrently and checks that each hidden triple is among the
candidates. Exits non-zero on any miss.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := c.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			stats, err := selfcheck.Run(ctx, selfcheck.Config{
				Count:   count,
				Seed:    seed,
				Workers: c.cfg.WorkerCount,
				Locale:  c.cfg.NameLocale,
			}, c.refs, svc)
			if errors.Is(err, selfcheck.ErrInvalidCount) {
				return err
			}

			fmt.Fprintf(c.out, "%d/%d recovered, %d candidates, %s\n",
				stats.Recovered, stats.Evaluated, stats.Candidates, stats.Duration.Round(time.Millisecond))
			for _, m := range stats.Misses {
				fmt.Fprintf(c.out, "miss: %s (hidden %d/%d/%d, outcome %q)\n",
					strings.TrimSpace(m.Sample.Line), m.Sample.Hidden.Attack, m.Sample.Hidden.Defense, m.Sample.Hidden.Stamina, m.Outcome)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&count, "count", 1000, "readings to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "generator seed")
	return cmd
}
