package detection

import (
	"fmt"
	"sort"
)

// Interpolation selects how average precision integrates the
// precision-recall curve.
type Interpolation string

const (
	// AllPoint is the area under the monotone precision envelope, sampled
	// at every recall change (PASCAL VOC 2010+).
	AllPoint Interpolation = "all-point"

	// ElevenPoint averages the envelope at recall 0, 0.1, ..., 1.0
	// (PASCAL VOC 2007).
	ElevenPoint Interpolation = "11-point"
)

// DefaultIoUThreshold is the overlap a detection needs to count as a hit.
const DefaultIoUThreshold = 0.5

// ClassAP is the average precision of one class.
type ClassAP struct {
	Label         int     `json:"label"`
	AP            float64 `json:"ap"`
	GroundTruths  int     `json:"ground_truths"`
	Detections    int     `json:"detections"`
	TruePositives int     `json:"true_positives"`
}

// EvalReport is the outcome of an evaluation run.
type EvalReport struct {
	// MAP is the mean AP over classes that have ground truth.
	MAP float64 `json:"map"`

	// Classes lists per-class results sorted by label.
	Classes []ClassAP `json:"classes"`

	// Images is the number of images that contributed.
	Images int `json:"images"`

	IoUThreshold  float64       `json:"iou_threshold"`
	Interpolation Interpolation `json:"interpolation"`
}

type scoredHit struct {
	score float64
	tp    bool
}

type classStats struct {
	hits   []scoredHit
	numPos int
}

// Evaluator accumulates detections and ground truth image by image and
// computes detection mAP.
//
// Not safe for concurrent use; feed it from one goroutine.
type Evaluator struct {
	// IoUThreshold is the minimum overlap for a hit. Zero or negative
	// means DefaultIoUThreshold.
	IoUThreshold  float64
	Interpolation Interpolation

	classes map[int]*classStats
	images  int
}

// NewEvaluator returns an evaluator at the given IoU threshold using
// all-point interpolation.
func NewEvaluator(iouThreshold float64) (*Evaluator, error) {
	if iouThreshold <= 0 || iouThreshold > 1 {
		return nil, fmt.Errorf("IoU threshold must be in (0, 1], got %v", iouThreshold)
	}
	return &Evaluator{
		IoUThreshold:  iouThreshold,
		Interpolation: AllPoint,
		classes:       make(map[int]*classStats),
	}, nil
}

// Add records one image. Detections and ground truth must be in the same
// coordinate frame (original image pixels).
func (e *Evaluator) Add(dets []Detection, gtBoxes []Box, gtLabels []int) error {
	if len(gtBoxes) != len(gtLabels) {
		return fmt.Errorf("got %d ground-truth boxes but %d labels", len(gtBoxes), len(gtLabels))
	}
	if len(dets) == 0 && len(gtBoxes) == 0 {
		return nil
	}
	if e.classes == nil {
		e.classes = make(map[int]*classStats)
	}
	e.images++

	gtByClass := make(map[int][]Box)
	for i, b := range gtBoxes {
		gtByClass[gtLabels[i]] = append(gtByClass[gtLabels[i]], b)
	}
	detByClass := make(map[int][]Detection)
	for _, d := range dets {
		detByClass[d.Label] = append(detByClass[d.Label], d)
	}

	for label, gts := range gtByClass {
		e.stats(label).numPos += len(gts)
	}
	for label, ds := range detByClass {
		st := e.stats(label)
		st.hits = append(st.hits, matchGreedy(ds, gtByClass[label], e.iouThreshold())...)
	}
	return nil
}

func (e *Evaluator) stats(label int) *classStats {
	st, ok := e.classes[label]
	if !ok {
		st = &classStats{}
		e.classes[label] = st
	}
	return st
}

// matchGreedy labels each detection as hit or miss. Detections are visited
// in descending score order; each claims the unmatched ground truth with
// the highest IoU at or above threshold.
func matchGreedy(dets []Detection, gts []Box, threshold float64) []scoredHit {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dets[order[i]].Score > dets[order[j]].Score
	})

	matched := make([]bool, len(gts))
	hits := make([]scoredHit, 0, len(dets))
	for _, i := range order {
		d := dets[i]
		best := -1
		bestIoU := threshold
		for j, g := range gts {
			if matched[j] {
				continue
			}
			if iou := d.Box.IoU(g); iou >= bestIoU {
				if best == -1 || iou > bestIoU {
					best = j
					bestIoU = iou
				}
			}
		}
		if best >= 0 {
			matched[best] = true
		}
		hits = append(hits, scoredHit{score: d.Score, tp: best >= 0})
	}
	return hits
}

// Report computes per-class AP over everything added so far.
func (e *Evaluator) Report() *EvalReport {
	report := &EvalReport{
		Classes:       make([]ClassAP, 0, len(e.classes)),
		Images:        e.images,
		IoUThreshold:  e.iouThreshold(),
		Interpolation: e.interpolation(),
	}

	labels := make([]int, 0, len(e.classes))
	for l := range e.classes {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	var sum float64
	var n int
	for _, l := range labels {
		st := e.classes[l]
		precision, recall, tp := precisionRecall(st)
		ap := 0.0
		if st.numPos > 0 {
			ap = averagePrecision(precision, recall, report.Interpolation)
			sum += ap
			n++
		}
		report.Classes = append(report.Classes, ClassAP{
			Label:         l,
			AP:            ap,
			GroundTruths:  st.numPos,
			Detections:    len(st.hits),
			TruePositives: tp,
		})
	}
	if n > 0 {
		report.MAP = sum / float64(n)
	}
	return report
}

func (e *Evaluator) iouThreshold() float64 {
	if e.IoUThreshold <= 0 {
		return DefaultIoUThreshold
	}
	return e.IoUThreshold
}

func (e *Evaluator) interpolation() Interpolation {
	if e.Interpolation == "" {
		return AllPoint
	}
	return e.Interpolation
}

// precisionRecall pools the hits of one class across images and returns
// the cumulative curve in descending score order.
func precisionRecall(st *classStats) (precision, recall []float64, tp int) {
	hits := make([]scoredHit, len(st.hits))
	copy(hits, st.hits)
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	precision = make([]float64, len(hits))
	recall = make([]float64, len(hits))
	fp := 0
	for i, h := range hits {
		if h.tp {
			tp++
		} else {
			fp++
		}
		precision[i] = float64(tp) / float64(tp+fp)
		if st.numPos > 0 {
			recall[i] = float64(tp) / float64(st.numPos)
		}
	}
	return precision, recall, tp
}

// averagePrecision integrates a precision-recall curve.
func averagePrecision(precision, recall []float64, interp Interpolation) float64 {
	if len(precision) == 0 {
		return 0
	}

	if interp == ElevenPoint {
		var ap float64
		for t := 0; t <= 10; t++ {
			thr := float64(t) / 10
			var p float64
			for i := range recall {
				if recall[i] >= thr && precision[i] > p {
					p = precision[i]
				}
			}
			ap += p / 11
		}
		return ap
	}

	// Precision envelope with sentinels at recall 0 and 1.
	mrec := make([]float64, 0, len(recall)+2)
	mpre := make([]float64, 0, len(precision)+2)
	mrec = append(mrec, 0)
	mpre = append(mpre, 0)
	mrec = append(mrec, recall...)
	mpre = append(mpre, precision...)
	mrec = append(mrec, 1)
	mpre = append(mpre, 0)

	for i := len(mpre) - 2; i >= 0; i-- {
		if mpre[i+1] > mpre[i] {
			mpre[i] = mpre[i+1]
		}
	}

	var ap float64
	for i := 1; i < len(mrec); i++ {
		if mrec[i] != mrec[i-1] {
			ap += (mrec[i] - mrec[i-1]) * mpre[i]
		}
	}
	return ap
}
