package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	repository "github.com/okian/ivscan/internal/adapters/repository"
	service "github.com/okian/ivscan/internal/app"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/internal/selfcheck"
)

// transcriptOf returns n generated lines, interleaved with log noise.
func transcriptOf(n int, seed uint64) ([]selfcheck.Sample, string) {
	refs, err := refdata.Default()
	if err != nil {
		panic(err)
	}
	samples, err := selfcheck.Generate(refs, refdata.LocaleEN, n, seed)
	if err != nil {
		panic(err)
	}
	var b strings.Builder
	for i, s := range samples {
		if i%3 == 0 {
			b.WriteString("I/ActivityManager: Displayed reader\n")
		}
		b.WriteString("05-12 10:11:12.345 I/Reader: ")
		b.WriteString(s.Line)
		b.WriteString("\n")
	}
	return samples, b.String()
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with full integration", t, func() {
		svc := startedService(
			service.WithWorkerCount(2),
			service.WithQueueSize(8),
			service.WithDedupeSize(500),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		samples, input := transcriptOf(60, 99)

		Convey("When running a transcript through it", func() {
			err := svc.Run(ctx, strings.NewReader(input))

			Convey("Then every observation is evaluated and stored", func() {
				So(err, ShouldBeNil)
				st := svc.Stats(ctx)
				So(st.Lines, ShouldEqual, 80)
				So(st.Skipped, ShouldEqual, 20)
				So(st.Parsed+st.Duplicates, ShouldEqual, 60)
				So(st.Evaluated, ShouldEqual, st.Parsed)
				So(st.Stored, ShouldEqual, int(st.Evaluated))
				So(st.Failed, ShouldEqual, 0)
			})

			Convey("Then the report is ordered by best IV", func() {
				rows, err := svc.TopN(ctx, 100)
				So(err, ShouldBeNil)
				So(len(rows), ShouldBeGreaterThan, 0)
				So(rows[0].Rank, ShouldEqual, 1)
				for i := 1; i < len(rows); i++ {
					So(rows[i-1].MaxIV, ShouldBeGreaterThanOrEqualTo, rows[i].MaxIV)
					So(rows[i].Rank, ShouldBeGreaterThanOrEqualTo, rows[i-1].Rank)
				}
			})

			Convey("Then each row can be looked up by its id", func() {
				rows, err := svc.TopN(ctx, 5)
				So(err, ShouldBeNil)
				for _, row := range rows {
					got, err := svc.Rank(ctx, row.EvaluationID)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, row)
				}

				_, err = svc.Rank(ctx, "missing")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then every stored species matches its sample", func() {
				rows, err := svc.TopN(ctx, 100)
				So(err, ShouldBeNil)
				bySeq := make(map[int]selfcheck.Sample, len(samples))
				for i, s := range samples {
					// one noise line precedes every third sample
					bySeq[i+i/3+2] = s
				}
				for _, row := range rows {
					s, ok := bySeq[row.Seq]
					So(ok, ShouldBeTrue)
					So(row.SpeciesID, ShouldEqual, s.Species.ID)
					So(row.Level, ShouldEqual, s.Level)
				}
			})
		})

		Convey("When the same reading is logged twice", func() {
			line := samples[0].Line + "\n"
			err := svc.Run(ctx, strings.NewReader(line+line+line))

			Convey("Then it is evaluated once", func() {
				So(err, ShouldBeNil)
				st := svc.Stats(ctx)
				So(st.Duplicates, ShouldEqual, 2)
				So(st.Evaluated, ShouldEqual, 1)
				So(st.Stored, ShouldEqual, 1)
			})
		})

		Convey("When a second input continues after the first", func() {
			first := samples[0].Line + "\nnoise\n"
			n, err := svc.RunFrom(ctx, strings.NewReader(first), 0)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			m, err := svc.RunFrom(ctx, strings.NewReader("noise\n"+samples[1].Line+"\n"), n)

			Convey("Then its lines are numbered after the first input", func() {
				So(err, ShouldBeNil)
				So(m, ShouldEqual, 2)
				rows, err := svc.TopN(ctx, 10)
				So(err, ShouldBeNil)
				seqs := make([]int, 0, len(rows))
				for _, row := range rows {
					seqs = append(seqs, row.Seq)
				}
				So(seqs, ShouldContain, 1)
				So(seqs, ShouldContain, 4)
			})
		})

		Convey("When the transcript contains a malformed observation", func() {
			bad := "Received values: Id: x (Pikachu), CP: 1, Max HP: 1, Dust cost: 1, Level: 1, FastMove A, SpecialMove B, Gender 0\n"
			err := svc.Run(ctx, strings.NewReader(bad+samples[1].Line+"\n"))

			Convey("Then the run carries on past it", func() {
				So(err, ShouldBeNil)
				st := svc.Stats(ctx)
				So(st.Failed, ShouldEqual, 1)
				So(st.Stored, ShouldEqual, 1)
			})
		})
	})
}

func TestServiceConcurrency(t *testing.T) {
	Convey("Given a service with a small report", t, func() {
		svc := startedService(
			service.WithWorkerCount(4),
			service.WithReportCapacity(10),
			service.WithDedupeSize(0),
		)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When several transcripts run at once", func() {
			var wg sync.WaitGroup
			errs := make([]error, 4)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, input := transcriptOf(25, uint64(i+1))
					errs[i] = svc.Run(ctx, strings.NewReader(input))
				}()
			}
			wg.Wait()

			Convey("Then only the best evaluations are kept", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				st := svc.Stats(ctx)
				So(st.Evaluated, ShouldEqual, 100)
				So(st.Duplicates, ShouldEqual, 0)
				So(st.Stored, ShouldEqual, 10)

				rows, err := svc.TopN(ctx, 20)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 10)
			})
		})
	})
}

func TestServiceErrorHandling(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()

		Convey("Then Run is refused", func() {
			err := svc.Run(context.Background(), strings.NewReader(""))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startedService(service.WithWorkerCount(1), service.WithQueueSize(1))
		defer svc.Stop()

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, input := transcriptOf(10, 4)
			err := svc.Run(ctx, strings.NewReader(input))

			Convey("Then the run stops with the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the input never ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			pr, pw := io.Pipe()
			defer func() { _ = pw.Close() }()

			done := make(chan error, 1)
			go func() { done <- svc.Run(ctx, pr) }()
			_, _ = pw.Write([]byte(sample(3).Line + "\n"))

			Convey("Then the run returns the deadline once the reader unblocks", func() {
				<-ctx.Done()
				// the scanner stays blocked in Read until the pipe closes
				_ = pw.Close()
				err := <-done
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the reader fails", func() {
			err := svc.Run(context.Background(), io.MultiReader(strings.NewReader(sample(1).Line+"\n"), failingReader{}))

			Convey("Then the read error is returned", func() {
				So(errors.Is(err, errRead), ShouldBeTrue)
			})
		})
	})
}

var errRead = errors.New("read failed")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errRead }

func TestServicePerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}

	Convey("Given a transcript of a thousand readings", t, func() {
		svc := startedService(service.WithWorkerCount(8))
		defer svc.Stop()
		_, input := transcriptOf(1000, 2024)

		Convey("When it is run", func() {
			start := time.Now()
			err := svc.Run(context.Background(), strings.NewReader(input))
			took := time.Since(start)

			Convey("Then it finishes promptly with every reading evaluated", func() {
				So(err, ShouldBeNil)
				So(took, ShouldBeLessThan, 30*time.Second)
				st := svc.Stats(context.Background())
				So(st.Evaluated+st.Duplicates, ShouldEqual, 1000)
				So(st.Empty, ShouldEqual, 0)
			})
		})
	})
}
