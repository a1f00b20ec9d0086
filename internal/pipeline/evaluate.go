package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/kuzushiji-mcp/internal/dataset"
	"github.com/ironsheep/kuzushiji-mcp/internal/detection"
)

// MapEvaluator measures detection mAP of a Detector over a dataset.
type MapEvaluator struct {
	Detector *Detector

	IoUThreshold  float64
	Interpolation detection.Interpolation

	// Workers bounds concurrent page evaluations. Values below 1 mean 1.
	Workers int

	Log logrus.FieldLogger
}

type pageResult struct {
	dets   []detection.Detection
	boxes  []detection.Box
	labels []int
}

// Evaluate runs the detector over every page of ds. Pages are processed
// concurrently but fed to the evaluator in dataset order, so the report
// does not depend on scheduling. The first error cancels the run.
func (m *MapEvaluator) Evaluate(ctx context.Context, ds dataset.Dataset) (*detection.EvalReport, error) {
	if m.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	ev, err := detection.NewEvaluator(m.IoUThreshold)
	if err != nil {
		return nil, err
	}
	if m.Interpolation != "" {
		ev.Interpolation = m.Interpolation
	}
	log := m.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	workers := m.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	n := ds.Len()
	results := make([]pageResult, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ex, err := ds.Example(i)
			if err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}
			dets, err := m.Detector.Detect(gctx, ex.Image)
			if err != nil {
				return fmt.Errorf("page %s: %w", ex.ImageID, err)
			}
			labels := make([]int, len(ex.Boxes))
			for j := range labels {
				labels[j] = CharacterClass
			}
			results[i] = pageResult{dets: dets, boxes: ex.Boxes, labels: labels}
			log.WithFields(logrus.Fields{
				"page":       ex.ImageID,
				"detections": len(dets),
				"characters": len(ex.Boxes),
			}).Debug("page evaluated")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, r := range results {
		if err := ev.Add(r.dets, r.boxes, r.labels); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
	}
	report := ev.Report()

	log.WithFields(logrus.Fields{
		"pages":    n,
		"map":      report.MAP,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("detection evaluation finished")
	return report, nil
}
