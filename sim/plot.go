package sim

import (
	"fmt"
	"image/color"

	"github.com/milosgajdos/go-markerslam/geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Track records robot trajectories produced during a simulation run.
type Track struct {
	Truth    []geom.Pose2D
	Odom     []geom.Pose2D
	Estimate []geom.Pose2D
}

// Add appends a sample to all recorded trajectories.
func (t *Track) Add(truth, odom, estimate geom.Pose2D) {
	t.Truth = append(t.Truth, truth)
	t.Odom = append(t.Odom, odom)
	t.Estimate = append(t.Estimate, estimate)
}

// Len returns the number of recorded samples.
func (t *Track) Len() int {
	return len(t.Truth)
}

// NewTrajectoryPlot creates new plot of the recorded track with true and
// estimated landmark positions.
// It returns error if the track is empty or gonum plot fails to be created.
func NewTrajectoryPlot(track *Track, landmarks []Landmark, estimated []geom.Pose2D) (*plot.Plot, error) {
	if track == nil || track.Len() == 0 {
		return nil, fmt.Errorf("invalid track supplied")
	}

	p := plot.New()

	p.Title.Text = "Marker SLAM"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	lines := []struct {
		name  string
		poses []geom.Pose2D
		color color.Color
		dash  []vg.Length
	}{
		{"truth", track.Truth, color.RGBA{R: 255, B: 128, A: 255}, nil},
		{"odometry", track.Odom, color.RGBA{R: 169, G: 169, B: 169, A: 255}, []vg.Length{vg.Points(4), vg.Points(2)}},
		{"estimate", track.Estimate, color.RGBA{G: 160, A: 255}, nil},
	}

	for _, l := range lines {
		line, err := plotter.NewLine(makePoints(l.poses))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s line: %v", l.name, err)
		}
		line.LineStyle.Color = l.color
		line.LineStyle.Dashes = l.dash
		line.LineStyle.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(l.name, line)
	}

	if len(landmarks) > 0 {
		poses := make([]geom.Pose2D, len(landmarks))
		for i, l := range landmarks {
			poses[i] = l.Pose
		}

		scatter, err := plotter.NewScatter(makePoints(poses))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
		scatter.Shape = draw.PyramidGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(scatter)
		p.Legend.Add("markers", scatter)
	}

	if len(estimated) > 0 {
		scatter, err := plotter.NewScatter(makePoints(estimated))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{G: 160, A: 255}
		scatter.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(scatter)
		p.Legend.Add("estimated markers", scatter)
	}

	return p, nil
}

func makePoints(poses []geom.Pose2D) plotter.XYs {
	pts := make(plotter.XYs, len(poses))
	for i, p := range poses {
		pts[i].X = p.X
		pts[i].Y = p.Y
	}

	return pts
}
