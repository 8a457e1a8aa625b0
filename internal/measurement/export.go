package measurement

import (
	"encoding/json"
	"fmt"
)

// ExportDocument is the downloadable measurement record set. Its JSON shape
// is consumed by downstream tools and must not change.
type ExportDocument struct {
	Measurements  []ExportedMeasurement `json:"measurements"`
	Scale         string                `json:"scale"`
	TotalDistance string                `json:"totalDistance"`
}

// ExportedMeasurement is one entry of an ExportDocument.
type ExportedMeasurement struct {
	Label      string `json:"label"`
	Distance   string `json:"distance"`
	StartPoint Point  `json:"startPoint"`
	EndPoint   Point  `json:"endPoint"`
}

// Export builds the export document from the current state. It does not
// modify the engine.
func (e *Engine) Export() ExportDocument {
	doc := ExportDocument{
		Measurements:  make([]ExportedMeasurement, 0, len(e.measurements)),
		Scale:         fmt.Sprintf("%.2f pixels/meter", e.calibration.PixelsPerMeter),
		TotalDistance: formatMeters(e.TotalMeters()),
	}
	for i, m := range e.measurements {
		label := m.Label
		if label == "" {
			label = fmt.Sprintf("Measurement %d", i+1)
		}
		doc.Measurements = append(doc.Measurements, ExportedMeasurement{
			Label:      label,
			Distance:   formatMeters(m.DistanceMeters),
			StartPoint: m.Start,
			EndPoint:   m.End,
		})
	}
	return doc
}

// MarshalIndented renders the document the way it is offered for download.
func (d ExportDocument) MarshalIndented() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return data, nil
}

func formatMeters(m float64) string {
	return fmt.Sprintf("%.2fm", m)
}
