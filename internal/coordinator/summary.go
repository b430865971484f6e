package coordinator

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// Summary describes the results of one round.
type Summary struct {
	Files       int
	Failed      int
	Tokens      uint64
	Matches     uint64
	MeanRatio   float64
	StdDevRatio float64
}

// Summarize computes totals and the spread of per-file match ratios.
func Summarize(report *types.Report) Summary {
	results := report.Results()
	s := Summary{
		Files:  len(report.Entries),
		Failed: len(report.Entries) - len(results),
	}
	if len(results) == 0 {
		return s
	}

	ratios := make([]float64, len(results))
	for i, r := range results {
		s.Tokens += r.TotalCount
		s.Matches += r.MatchCount
		ratios[i] = r.Ratio()
	}

	if len(ratios) == 1 {
		s.MeanRatio = ratios[0]
		return s
	}
	s.MeanRatio, s.StdDevRatio = stat.MeanStdDev(ratios, nil)
	return s
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("files", s.Files)
	enc.AddInt("failed", s.Failed)
	enc.AddUint64("tokens", s.Tokens)
	enc.AddUint64("matches", s.Matches)
	enc.AddFloat64("mean_ratio", s.MeanRatio)
	enc.AddFloat64("stddev_ratio", s.StdDevRatio)
	return nil
}

func (s Summary) field() zap.Field { return zap.Object("summary", s) }
