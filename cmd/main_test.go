package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ivscan/internal/config"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/internal/domain/types"
	"github.com/okian/ivscan/internal/selfcheck"
)

// execute runs the CLI with args and stdin, returning stdout, stderr and the error.
func execute(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func generated(n int, seed uint64) []selfcheck.Sample {
	refs, err := refdata.Default()
	if err != nil {
		panic(err)
	}
	s, err := selfcheck.Generate(refs, refdata.LocaleEN, n, seed)
	if err != nil {
		panic(err)
	}
	return s
}

func TestSpeciesCommand(t *testing.T) {
	convey.Convey("Given the species command", t, func() {
		convey.Convey("When run without a name", func() {
			out, _, err := execute("", "species")

			convey.Convey("Then the table is listed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Pikachu")
				convey.So(out, convey.ShouldContainSubstring, "Bulbasaur")
			})
		})

		convey.Convey("When run with a misspelled name", func() {
			out, _, err := execute("", "species", "pikachuu")

			convey.Convey("Then the closest species is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "Pikachu (#25) distance 1\n")
			})
		})

		convey.Convey("When run in French", func() {
			out, _, err := execute("", "--locale", "fr", "species")

			convey.Convey("Then French names are listed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Salamèche")
			})
		})

		convey.Convey("When the locale is unknown", func() {
			_, _, err := execute("", "--locale", "de", "species")

			convey.Convey("Then configuration is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestEvaluateCommand(t *testing.T) {
	convey.Convey("Given a transcript on standard input", t, func() {
		samples := generated(20, 5)
		var b strings.Builder
		for _, s := range samples {
			b.WriteString("I/Reader: " + s.Line + "\n")
			b.WriteString("I/Other: noise\n")
		}

		convey.Convey("When evaluating it as JSON", func() {
			out, _, err := execute(b.String(), "evaluate", "--json", "--top", "3")

			convey.Convey("Then the best three readings are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				var rows []types.Entry
				convey.So(json.Unmarshal([]byte(out), &rows), convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 3)
				convey.So(rows[0].Rank, convey.ShouldEqual, 1)
				convey.So(rows[0].MaxIV, convey.ShouldBeGreaterThanOrEqualTo, rows[2].MaxIV)
			})
		})

		convey.Convey("When evaluating it from a file as a table", func() {
			path := filepath.Join(t.TempDir(), "capture.log")
			convey.So(os.WriteFile(path, []byte(b.String()), 0o600), convey.ShouldBeNil)

			out, errOut, err := execute("", "evaluate", path)

			convey.Convey("Then a report table and a summary log are written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldStartWith, "RANK")
				convey.So(strings.Count(out, "\n"), convey.ShouldEqual, 11)
				convey.So(errOut, convey.ShouldContainSubstring, "evaluation summary")
			})
		})

		convey.Convey("When the file does not exist", func() {
			metricsFile := filepath.Join(t.TempDir(), "ivscan.prom")
			_, _, err := execute("", "--metrics-file", metricsFile, "evaluate", filepath.Join(t.TempDir(), "missing.log"))

			convey.Convey("Then the open error is returned", func() {
				convey.So(errors.Is(err, os.ErrNotExist), convey.ShouldBeTrue)
			})

			convey.Convey("Then metrics are still written", func() {
				_, statErr := os.Stat(metricsFile)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When it is split across two files", func() {
			dir := t.TempDir()
			a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
			convey.So(os.WriteFile(a, []byte(samples[0].Line+"\nnoise\n"), 0o600), convey.ShouldBeNil)
			convey.So(os.WriteFile(b, []byte(samples[1].Line+"\n"), 0o600), convey.ShouldBeNil)

			out, _, err := execute("", "evaluate", "--json", a, b)

			convey.Convey("Then line numbers continue into the second file", func() {
				convey.So(err, convey.ShouldBeNil)
				var rows []types.Entry
				convey.So(json.Unmarshal([]byte(out), &rows), convey.ShouldBeNil)
				seqs := make([]int, 0, len(rows))
				for _, r := range rows {
					seqs = append(seqs, r.Seq)
				}
				convey.So(seqs, convey.ShouldHaveLength, 2)
				convey.So(seqs, convey.ShouldContain, 1)
				convey.So(seqs, convey.ShouldContain, 3)
			})
		})
	})

	convey.Convey("Given a single observation line", t, func() {
		s := generated(1, 9)[0]

		convey.Convey("When evaluating it with --line", func() {
			out, _, err := execute("", "evaluate", "--line", s.Line)

			convey.Convey("Then the candidates are listed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldStartWith, s.Species.Name)
				convey.So(out, convey.ShouldContainSubstring, "ATK")
			})
		})

		convey.Convey("When evaluating it with --line and --json", func() {
			out, _, err := execute("", "evaluate", "--json", "--line", s.Line)

			convey.Convey("Then the hidden triple is among the candidates", func() {
				convey.So(err, convey.ShouldBeNil)
				var ev evaluationJSON
				convey.So(json.Unmarshal([]byte(out), &ev), convey.ShouldBeNil)
				convey.So(string(ev.Outcome), convey.ShouldEqual, "ok")
				convey.So(ev.SpeciesID, convey.ShouldEqual, s.Species.ID)
				convey.So(ev.Candidates, convey.ShouldContain, candidateJSON{
					Attack: s.Hidden.Attack, Defense: s.Hidden.Defense, Stamina: s.Hidden.Stamina, Percent: s.Hidden.Percent(),
				})
			})
		})
	})
}

func TestDetailCommand(t *testing.T) {
	convey.Convey("Given a detail screen on standard input", t, func() {
		blob := "CP 3O2\nPikachu\nBonbons Pikachu\n6.0kg 0.40m\n"

		convey.Convey("When reading it as JSON", func() {
			out, _, err := execute(blob, "detail", "--json")

			convey.Convey("Then every part is reported", func() {
				convey.So(err, convey.ShouldBeNil)
				var d detailJSON
				convey.So(json.Unmarshal([]byte(out), &d), convey.ShouldBeNil)
				convey.So(*d.CP, convey.ShouldEqual, 302)
				convey.So(d.SpeciesID, convey.ShouldEqual, 25)
				convey.So(*d.Distance, convey.ShouldEqual, 0)
				convey.So(*d.BodyMassIndex, convey.ShouldAlmostEqual, 37.5, 1e-9)
			})
		})

		convey.Convey("When reading it as text", func() {
			out, _, err := execute(blob, "detail")

			convey.Convey("Then the fields are labelled", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "302")
				convey.So(out, convey.ShouldContainSubstring, "Pikachu (#25)")
				convey.So(out, convey.ShouldContainSubstring, "BMI:")
			})
		})
	})
}

func TestSelfcheckCommand(t *testing.T) {
	convey.Convey("Given the selfcheck command", t, func() {
		metricsFile := filepath.Join(t.TempDir(), "ivscan.prom")
		out, _, err := execute("", "--metrics-file", metricsFile, "--workers", "2", "selfcheck", "--count", "50", "--seed", "3")

		convey.Convey("Then every reading is recovered", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldStartWith, "50/50 recovered")
		})

		convey.Convey("Then metrics are written on exit", func() {
			b, err := os.ReadFile(metricsFile)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldContainSubstring, "ivscan_pipeline_evaluations_total")
		})
	})

	convey.Convey("Given a negative count", t, func() {
		out, _, err := execute("", "selfcheck", "--count", "-1")

		convey.Convey("Then the command fails without a report", func() {
			convey.So(errors.Is(err, selfcheck.ErrInvalidCount), convey.ShouldBeTrue)
			convey.So(out, convey.ShouldBeEmpty)
		})
	})
}

func TestConfigFile(t *testing.T) {
	convey.Convey("Given a configuration file", t, func() {
		path := filepath.Join(t.TempDir(), "ivscan.yaml")
		convey.So(os.WriteFile(path, []byte("name_locale: fr\nlog_format: json\n"), 0o600), convey.ShouldBeNil)

		convey.Convey("When it is passed with --config", func() {
			out, _, err := execute("", "--config", path, "species", "salameche")

			convey.Convey("Then its values are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "Salamèche (#4) distance 1\n")
			})
		})

		convey.Convey("When a flag overrides it", func() {
			out, _, err := execute("", "--config", path, "--locale", "en", "species", "charmandr")

			convey.Convey("Then the flag wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "Charmander (#4) distance 1\n")
			})
		})
	})

	convey.Convey("Given an invalid worker count in the environment", t, func() {
		t.Setenv("IVSCAN_WORKER_COUNT", "0")

		convey.Convey("When --workers overrides it", func() {
			out, _, err := execute("", "--workers", "4", "species", "pikachu")

			convey.Convey("Then the command runs", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "Pikachu (#25) distance 0\n")
			})
		})

		convey.Convey("When nothing overrides it", func() {
			_, _, err := execute("", "species", "pikachu")

			convey.Convey("Then configuration is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a configuration file that does not exist", t, func() {
		_, _, err := execute("", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "species")

		convey.Convey("Then loading fails", func() {
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}
