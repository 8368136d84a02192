package detector

import (
	"image"
	"log/slog"
	"math"
	"os"

	"github.com/khaledhikmat/vs-detect/model"
	"github.com/khaledhikmat/vs-detect/service/config"
	"github.com/khaledhikmat/vs-detect/service/lgr"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

const (
	// shorter image side fed to the network, longer side is capped at testMaxSize
	testScale   = 500
	testMaxSize = 3000
	// rois rows are (image, x1, y1, x2, y2) in network input pixels
	roiRowLen = 5
)

// output layers of the faster_rcnn_alt_opt test networks
var (
	proposalLayer = "proposal"
	clsProbLayer  = "cls_prob"
	bboxPredLayer = "bbox_pred"
	outputLayers  = []string{proposalLayer, clsProbLayer, bboxPredLayer}
)

// BGR pixel means subtracted by the Faster R-CNN training pipeline
var pixelMeans = gocv.NewScalar(102.9801, 115.9465, 122.7717, 0)

type caffeService struct {
	net     gocv.Net
	network config.Network
}

// CheckModelFiles reports missing network files with a hint on how to get them
func CheckModelFiles(network config.Network) error {
	if _, err := os.Stat(network.CaffeModel); err != nil {
		return xerrors.Errorf("%s not found. Did you run ./data/scripts/fetch_faster_rcnn_models.sh?: %w", network.CaffeModel, ErrModelMissing)
	}
	if _, err := os.Stat(network.Prototxt); err != nil {
		return xerrors.Errorf("%s not found: %w", network.Prototxt, ErrModelMissing)
	}
	return nil
}

// NewCaffe loads a Faster R-CNN network through the OpenCV DNN module
func NewCaffe(network config.Network, device config.Device) (IService, error) {
	if err := CheckModelFiles(network); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromCaffe(network.Prototxt, network.CaffeModel)
	if net.Empty() {
		return nil, xerrors.Errorf("error reading network %s from %s", network.Name, network.CaffeModel)
	}

	// OpenCV aborts on a missing output layer, so check them before the first forward pass
	if err := checkLayers(net.GetLayerNames()); err != nil {
		net.Close()
		return nil, xerrors.Errorf("network %s from %s: %w", network.Name, network.Prototxt, err)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if !device.CPU {
		// OpenCV picks the CUDA device itself, GPUID is informational only
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}

	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting target: %w", err)
	}

	lgr.Logger.Info("loaded network",
		slog.String("network", network.Name),
		slog.String("model", network.CaffeModel),
		slog.Bool("cpu", device.CPU),
		slog.Int("gpu", device.GPUID),
		slog.String("openCV", gocv.Version()),
	)

	return &caffeService{
		net:     net,
		network: network,
	}, nil
}

func (svc *caffeService) Classes() []string {
	return svc.network.Classes
}

func (svc *caffeService) Close() error {
	return svc.net.Close()
}

func (svc *caffeService) Detect(frame gocv.Mat, proposalHints []model.BoundingBox) (model.ClassScoreTable, error) {
	if len(proposalHints) > 0 {
		return model.ClassScoreTable{}, ErrProposalHints
	}
	if frame.Empty() {
		return model.ClassScoreTable{}, ErrEmptyFrame
	}

	scale := imageScale(frame.Rows(), frame.Cols())
	size := image.Pt(int(math.Round(float64(frame.Cols())*scale)), int(math.Round(float64(frame.Rows())*scale)))

	blob := gocv.BlobFromImage(frame, 1.0, size, pixelMeans, false, false)
	defer blob.Close()

	imInfo := gocv.NewMatWithSize(1, 3, gocv.MatTypeCV32F)
	defer imInfo.Close()
	imInfo.SetFloatAt(0, 0, float32(size.Y))
	imInfo.SetFloatAt(0, 1, float32(size.X))
	imInfo.SetFloatAt(0, 2, float32(scale))

	svc.net.SetInput(blob, "data")
	svc.net.SetInput(imInfo, "im_info")

	outputs := svc.net.ForwardLayers(outputLayers)
	defer func() {
		for _, m := range outputs {
			m.Close()
		}
	}()
	if len(outputs) != len(outputLayers) {
		return model.ClassScoreTable{}, xerrors.Errorf("%d outputs for layers %v: %w", len(outputs), outputLayers, model.ErrShapeMismatch)
	}

	rois, err := matFloats(outputs[0])
	if err != nil {
		return model.ClassScoreTable{}, xerrors.Errorf("error reading %s: %w", proposalLayer, err)
	}
	probs, err := matFloats(outputs[1])
	if err != nil {
		return model.ClassScoreTable{}, xerrors.Errorf("error reading %s: %w", clsProbLayer, err)
	}
	deltas, err := matFloats(outputs[2])
	if err != nil {
		return model.ClassScoreTable{}, xerrors.Errorf("error reading %s: %w", bboxPredLayer, err)
	}

	return decodeProposals(rois, probs, deltas, len(svc.network.Classes), scale, frame.Cols(), frame.Rows())
}

func checkLayers(names []string) error {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, l := range outputLayers {
		if !known[l] {
			return xerrors.Errorf("layer %s not found: %w", l, ErrModelMissing)
		}
	}
	return nil
}

// matFloats copies a continuous float32 blob of any shape
func matFloats(m gocv.Mat) ([]float32, error) {
	if m.Empty() {
		return []float32{}, nil
	}
	if m.Type() != gocv.MatTypeCV32F {
		return nil, xerrors.Errorf("blob type %v: %w", m.Type(), model.ErrShapeMismatch)
	}
	if !m.IsContinuous() {
		m = m.Clone()
		defer m.Close()
	}
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), data...), nil
}

// decodeProposals builds the raw per class table the way im_detect does: rois
// are mapped back to source pixels, every class column gets its own regressed
// box, and boxes are clipped to the image.
func decodeProposals(rois, probs, deltas []float32, classes int, scale float64, width, height int) (model.ClassScoreTable, error) {
	if len(rois)%roiRowLen != 0 {
		return model.ClassScoreTable{}, xerrors.Errorf("%d roi values: %w", len(rois), model.ErrShapeMismatch)
	}

	rows := len(rois) / roiRowLen
	if rows == 0 {
		return model.NewClassScoreTable(nil, nil)
	}
	if len(probs) != rows*classes || len(deltas) != rows*4*classes {
		return model.ClassScoreTable{}, xerrors.Errorf("%d rois, %d probabilities, %d deltas for %d classes: %w",
			rows, len(probs), len(deltas), classes, model.ErrShapeMismatch)
	}

	scores := mat.NewDense(rows, classes, nil)
	boxes := mat.NewDense(rows, 4*classes, nil)

	for i := 0; i < rows; i++ {
		roi := rois[i*roiRowLen : (i+1)*roiRowLen]
		x1 := float64(roi[1]) / scale
		y1 := float64(roi[2]) / scale
		x2 := float64(roi[3]) / scale
		y2 := float64(roi[4]) / scale

		w := x2 - x1 + 1
		h := y2 - y1 + 1
		cx := x1 + 0.5*w
		cy := y1 + 0.5*h

		for c := 0; c < classes; c++ {
			scores.Set(i, c, float64(probs[i*classes+c]))

			d := deltas[(i*classes+c)*4 : (i*classes+c+1)*4]
			pcx := float64(d[0])*w + cx
			pcy := float64(d[1])*h + cy
			pw := math.Exp(float64(d[2])) * w
			ph := math.Exp(float64(d[3])) * h

			boxes.Set(i, 4*c+0, clip(pcx-0.5*pw, width))
			boxes.Set(i, 4*c+1, clip(pcy-0.5*ph, height))
			boxes.Set(i, 4*c+2, clip(pcx+0.5*pw, width))
			boxes.Set(i, 4*c+3, clip(pcy+0.5*ph, height))
		}
	}

	return model.NewClassScoreTable(scores, boxes)
}

func imageScale(rows, cols int) float64 {
	minSide := math.Min(float64(rows), float64(cols))
	maxSide := math.Max(float64(rows), float64(cols))

	scale := testScale / minSide
	if math.Round(scale*maxSide) > testMaxSize {
		scale = testMaxSize / maxSide
	}
	return scale
}

func clip(v float64, limit int) float64 {
	return math.Max(0, math.Min(v, float64(limit-1)))
}
